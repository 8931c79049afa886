package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"health-chat/internal/domain"
	"health-chat/internal/llm"
)

// ResponseGenerator produce el texto del asistente. Es un colaborador externo:
// cualquier error que devuelva se trata como ErrUpstream.
type ResponseGenerator interface {
	GenerateReply(ctx context.Context, conversation domain.Conversation, history []domain.Message) (string, error)
	GenerateQuickActionText(ctx context.Context, tag string) (string, error)
}

var errUnknownQuickAction = errors.New("unknown quick action")

const healthSystemPrompt = `You are a careful health-information assistant.
Give clear, general, evidence-based information in plain language.
Never diagnose or prescribe. Suggest seeing a healthcare professional when appropriate.
If the user describes emergency symptoms (chest pain, trouble breathing, stroke signs, severe bleeding, suicidal thoughts), tell them to call 911 or their local emergency number immediately.
Keep answers short and structured.`

// LLMResponder genera respuestas con un modelo de chat.
type LLMResponder struct {
	client       llm.LLMClient
	historyLimit int
}

func NewLLMResponder(client llm.LLMClient, historyLimit int) *LLMResponder {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &LLMResponder{client: client, historyLimit: historyLimit}
}

func (r *LLMResponder) GenerateReply(ctx context.Context, conversation domain.Conversation, history []domain.Message) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("llm responder not configured")
	}
	messages := buildChatMessages(conversation, history, r.historyLimit)
	raw, err := r.client.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}
	reply := cleanAssistantReply(raw)
	if reply == "" {
		return "", llm.ErrEmptyResponse
	}
	return reply, nil
}

// GenerateQuickActionText usa el catalogo fijo; los atajos no consumen el modelo.
func (r *LLMResponder) GenerateQuickActionText(_ context.Context, tag string) (string, error) {
	text, ok := cannedQuickActionText(tag)
	if !ok {
		return "", errUnknownQuickAction
	}
	return text, nil
}

// buildChatMessages arma el prompt: sistema + ultimos mensajes ordenados por seq.
func buildChatMessages(conversation domain.Conversation, history []domain.Message, limit int) []llm.ChatMessage {
	msgs := make([]domain.Message, len(history))
	copy(msgs, history)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Seq < msgs[j].Seq
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	system := healthSystemPrompt
	if conversation.Title != "" && conversation.Title != domain.DefaultConversationTitle {
		system += "\nConversation topic: " + conversation.Title
	}

	out := make([]llm.ChatMessage, 0, len(msgs)+1)
	out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

var (
	replyFenceStart = regexp.MustCompile("(?is)^\\s*```[a-z]*\\s*")
	replyFenceEnd   = regexp.MustCompile("(?is)\\s*```\\s*$")
	replyRolePrefix = regexp.MustCompile(`(?i)^\s*assistant\s*:\s*`)
)

// cleanAssistantReply quita BOM, fences que envuelven toda la respuesta y el prefijo "Assistant:".
func cleanAssistantReply(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	if replyFenceStart.MatchString(s) && replyFenceEnd.MatchString(s) {
		s = replyFenceStart.ReplaceAllString(s, "")
		s = replyFenceEnd.ReplaceAllString(s, "")
	}
	s = replyRolePrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// KeywordResponder responde con plantillas segun palabras clave del ultimo mensaje.
// Se usa cuando no hay LLM configurado.
type KeywordResponder struct{}

type keywordTopic struct {
	keywords []string
	reply    string
}

var keywordTopics = []keywordTopic{
	{
		keywords: []string{"chest pain", "can't breathe", "cannot breathe", "stroke", "suicid", "overdose", "unconscious"},
		reply:    "What you describe may be a medical emergency. Please call 911 or your local emergency number right now, or go to the nearest emergency department.",
	},
	{
		keywords: []string{"headache", "migraine"},
		reply: "Headaches are often linked to dehydration, stress, poor sleep, eye strain or skipped meals. " +
			"Rest in a quiet, dark room, drink water and consider an over-the-counter pain reliever if it is safe for you. " +
			"See a doctor if the headache is sudden and severe, follows a head injury, or comes with fever, stiff neck, confusion or vision changes.",
	},
	{
		keywords: []string{"fever", "temperature"},
		reply: "A fever is usually the body fighting an infection. Rest, drink fluids and monitor your temperature. " +
			"Contact a healthcare provider if it is above 39.4°C (103°F), lasts more than three days, or comes with a rash, stiff neck or trouble breathing.",
	},
	{
		keywords: []string{"cough", "cold", "sore throat", "flu"},
		reply: "Most coughs and colds improve within one to two weeks. Rest, fluids, honey in warm water and humidified air can help. " +
			"See a doctor if you have trouble breathing, a high fever, or symptoms lasting longer than three weeks.",
	},
	{
		keywords: []string{"sleep", "insomnia", "tired"},
		reply: "Good sleep habits help: keep a consistent schedule, limit screens and caffeine in the evening, and keep your bedroom cool and dark. " +
			"If poor sleep lasts for weeks or affects your daily life, talk to a healthcare provider.",
	},
	{
		keywords: []string{"stress", "anxiety", "anxious", "depress"},
		reply: "Stress and anxiety are common. Regular exercise, slow breathing, time outdoors and talking with people you trust can help. " +
			"If these feelings are persistent or overwhelming, please reach out to a mental health professional.",
	},
	{
		keywords: []string{"medication", "medicine", "pill", "dose", "dosage"},
		reply: "For medication questions, always check the label and follow your prescriber's instructions. " +
			"A pharmacist can answer questions about dosing, side effects and interactions.",
	},
}

const keywordFallbackReply = "Thanks for sharing. Could you tell me more about what you are experiencing, when it started and how severe it is? " +
	"I can offer general health information to help you decide on next steps."

func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{}
}

func (KeywordResponder) GenerateReply(ctx context.Context, _ domain.Conversation, history []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	latest := latestUserContent(history)
	text := strings.ToLower(latest)
	for _, topic := range keywordTopics {
		for _, kw := range topic.keywords {
			if strings.Contains(text, kw) {
				return topic.reply + "\n\n" + medicalDisclaimer, nil
			}
		}
	}
	return keywordFallbackReply + "\n\n" + medicalDisclaimer, nil
}

func (KeywordResponder) GenerateQuickActionText(_ context.Context, tag string) (string, error) {
	text, ok := cannedQuickActionText(tag)
	if !ok {
		return "", errUnknownQuickAction
	}
	return text, nil
}

func latestUserContent(history []domain.Message) string {
	var latest *domain.Message
	for i := range history {
		m := &history[i]
		if m.Role != domain.RoleUser {
			continue
		}
		if latest == nil || m.Seq > latest.Seq {
			latest = m
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Content
}
