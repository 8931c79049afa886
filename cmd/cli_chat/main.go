package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"health-chat/internal/chatclient"
	"health-chat/internal/config"
	"health-chat/internal/domain"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	api := chatclient.NewAPIClient(cfg.APIURL, cfg.Timeout, logger)
	session := chatclient.NewSession(api, logger, chatclient.SessionOptions{
		UserID: cfg.UserID,
		Title:  cfg.Title,
	})
	defer session.Close()

	fmt.Println("===== Health Assistant =====")
	for session.State() != chatclient.StateReady {
		if err := session.Init(ctx); err != nil {
			fmt.Printf("! %s (%v)\n", session.Notice(), err)
			fmt.Print("Press Enter to retry or type /exit: ")
			line, readErr := reader.ReadString('\n')
			if readErr != nil || strings.TrimSpace(line) == "/exit" {
				return
			}
		}
	}

	printHistory(session.Messages())
	if pending := session.Unanswered(); len(pending) > 0 {
		fmt.Printf("(%d message(s) without a reply; send them again if needed)\n", len(pending))
	}
	printHelp()

	for {
		fmt.Print("You > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				fmt.Printf("error reading input: %v\n", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/exit":
			fmt.Println("Bye.")
			return
		case line == "/help":
			printHelp()
		case line == "/history":
			if err := session.Refresh(ctx); err != nil {
				showNotice(session)
				continue
			}
			printHistory(session.Messages())
		case strings.HasPrefix(line, "/quick"):
			tag := strings.TrimSpace(strings.TrimPrefix(line, "/quick"))
			if tag == "" {
				fmt.Println("usage: /quick <symptoms|medications|wellness|emergency>")
				continue
			}
			msg, err := session.QuickAction(ctx, tag)
			if err != nil {
				showNotice(session)
				continue
			}
			printMessage(msg)
		default:
			fmt.Println("Assistant is typing...")
			reply, err := session.Send(ctx, line)
			if err != nil {
				showNotice(session)
				continue
			}
			printMessage(reply)
		}
	}
}

func showNotice(session *chatclient.Session) {
	if notice := session.Notice(); notice != "" {
		fmt.Printf("! %s\n", notice)
		session.DismissNotice()
	}
	if draft := session.Draft(); draft != "" {
		fmt.Printf("(unsent: %q)\n", draft)
	}
}

func printHelp() {
	fmt.Println("Commands: /quick <tag>, /history, /help, /exit")
}

func printHistory(msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Println("(no messages yet)")
		return
	}
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m domain.Message) {
	who := "Assistant"
	if m.Role == domain.RoleUser {
		who = "You"
	}
	fmt.Printf("[%s] %s > %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
}
