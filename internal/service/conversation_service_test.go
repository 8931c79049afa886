package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"health-chat/internal/domain"
	"health-chat/internal/repository"
)

type stubResponder struct {
	mu        sync.Mutex
	reply     string
	err       error
	delay     time.Duration
	histories [][]domain.Message
}

func (s *stubResponder) GenerateReply(ctx context.Context, _ domain.Conversation, history []domain.Message) (string, error) {
	s.mu.Lock()
	s.histories = append(s.histories, history)
	reply, err, delay := s.reply, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if reply == "" && len(history) > 0 {
		return "re: " + history[len(history)-1].Content, nil
	}
	return reply, nil
}

func (s *stubResponder) GenerateQuickActionText(_ context.Context, tag string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	text, ok := cannedQuickActionText(tag)
	if !ok {
		return "", errUnknownQuickAction
	}
	return text, nil
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
	errs  []error
}

func (o *recordingObserver) ObserveGeneration(kind string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
	o.errs = append(o.errs, err)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

type failingMessageRepo struct {
	repository.MessageRepository
	appendErr error
}

func (f failingMessageRepo) Append(ctx context.Context, m domain.InsertMessage) (domain.Message, error) {
	if f.appendErr != nil {
		return domain.Message{}, f.appendErr
	}
	return f.MessageRepository.Append(ctx, m)
}

func newTestConversationService(responder ResponseGenerator) (*ConversationService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(), responder, nil, nil, ConversationSettings{})
	return svc, store
}

func mustCreateConversation(t *testing.T, svc *ConversationService) domain.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), domain.InsertConversation{})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestCreateConversation_Defaults(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{})

	conv, err := svc.CreateConversation(context.Background(), domain.InsertConversation{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conv.ID == "" || conv.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned id and createdAt")
	}
	if conv.UserID != domain.AnonymousUserID || conv.Title != domain.DefaultConversationTitle {
		t.Fatalf("expected sentinel user and default title, got %+v", conv)
	}

	got, err := svc.GetConversation(context.Background(), conv.ID)
	if err != nil || got.ID != conv.ID {
		t.Fatalf("expected stored conversation, got %+v err=%v", got, err)
	}
}

func TestCreateConversation_StorageError(t *testing.T) {
	svc := NewConversationService(zap.NewNop(), failingConversationRepo{}, repository.NewMemoryStore().Messages(), &stubResponder{}, nil, nil, ConversationSettings{})
	if _, err := svc.CreateConversation(context.Background(), domain.InsertConversation{}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

type failingConversationRepo struct{}

func (failingConversationRepo) Create(context.Context, domain.Conversation) error {
	return errors.New("db down")
}

func (failingConversationRepo) GetByID(context.Context, string) (domain.Conversation, error) {
	return domain.Conversation{}, errors.New("db down")
}

func TestListMessages_UnknownConversation(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{})
	for _, id := range []string{"missing", "  "} {
		if _, err := svc.ListMessages(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for %q, got %v", id, err)
		}
	}
}

func TestListMessages_EmptyConversation(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{})
	conv := mustCreateConversation(t, svc)

	msgs, err := svc.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", msgs)
	}
}

func TestPostMessage_ScenarioA(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{reply: "Rest and hydrate."})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	reply, err := svc.PostMessage(ctx, conv.ID, "I have a headache")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply.Role != domain.RoleAssistant || reply.Content != "Rest and hydrate." {
		t.Fatalf("unexpected reply %+v", reply)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "I have a headache" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].ID != reply.ID {
		t.Fatalf("unexpected second message %+v", msgs[1])
	}
	if msgs[0].IsTyping {
		t.Fatalf("expected pending flag cleared after reply")
	}
	if msgs[1].Timestamp.Before(msgs[0].Timestamp) || msgs[1].Seq <= msgs[0].Seq {
		t.Fatalf("expected non-decreasing order")
	}
}

func TestPostMessage_LongReplyIsStored(t *testing.T) {
	long := strings.Repeat("a", maxMessageLength+500)
	svc, _ := newTestConversationService(&stubResponder{reply: long})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	reply, err := svc.PostMessage(ctx, conv.ID, "tell me everything about diabetes")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply.Content != long {
		t.Fatalf("expected full reply, got %d runes", len(reply.Content))
	}

	msgs, err := svc.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 2 || msgs[0].IsTyping {
		t.Fatalf("expected answered turn, got %+v", msgs)
	}
}

func TestPostMessage_UserContentTooLong(t *testing.T) {
	svc, store := newTestConversationService(&stubResponder{reply: "x"})
	conv := mustCreateConversation(t, svc)

	_, err := svc.PostMessage(context.Background(), conv.ID, strings.Repeat("a", maxMessageLength+1))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	msgs, _ := store.Messages().ListByConversationID(context.Background(), conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(msgs))
	}
}

func TestPostMessage_PassesHistoryToGenerator(t *testing.T) {
	responder := &stubResponder{}
	svc, _ := newTestConversationService(responder)
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	if _, err := svc.PostMessage(ctx, conv.ID, "first"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.PostMessage(ctx, conv.ID, "second"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	last := responder.histories[len(responder.histories)-1]
	var contents []string
	for _, m := range last {
		contents = append(contents, m.Content)
	}
	want := []string{"first", "re: first", "second"}
	if !reflect.DeepEqual(contents, want) {
		t.Fatalf("expected history %v, got %v", want, contents)
	}
}

func TestPostMessage_HistoryLimit(t *testing.T) {
	responder := &stubResponder{}
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(), responder, nil, nil, ConversationSettings{HistoryLimit: 3})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	for i := 0; i < 4; i++ {
		if _, err := svc.PostMessage(ctx, conv.ID, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	last := responder.histories[len(responder.histories)-1]
	if len(last) != 3 || last[2].Content != "m3" {
		t.Fatalf("expected last 3 messages ending in m3, got %+v", last)
	}
}

func TestPostMessage_EmptyContent_ScenarioC(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{reply: "x"})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := svc.PostMessage(ctx, conv.ID, content); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", content, err)
		}
	}

	msgs, err := svc.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no persisted messages, got %d", len(msgs))
	}
}

func TestPostMessage_UnknownConversation(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{reply: "x"})
	if _, err := svc.PostMessage(context.Background(), "missing", "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostMessage_UpstreamFailureKeepsPendingUserMessage(t *testing.T) {
	observer := &recordingObserver{}
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(), &stubResponder{err: errors.New("model offline")}, nil, observer, ConversationSettings{})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	if _, err := svc.PostMessage(ctx, conv.ID, "hello"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	msgs, _ := svc.ListMessages(ctx, conv.ID)
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected lone user message, got %+v", msgs)
	}
	if !msgs[0].IsTyping {
		t.Fatalf("expected user message to stay marked pending")
	}
	if len(observer.kinds) != 1 || observer.kinds[0] != "reply" || observer.errs[0] == nil {
		t.Fatalf("expected failed generation observed, got %+v", observer)
	}
}

func TestPostMessage_UpstreamTimeout(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(),
		&stubResponder{reply: "late", delay: time.Second}, nil, nil,
		ConversationSettings{UpstreamTimeout: 20 * time.Millisecond})
	conv := mustCreateConversation(t, svc)

	_, err := svc.PostMessage(context.Background(), conv.ID, "hello")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout message, got %v", err)
	}
}

func TestPostMessage_BlankReplyIsUpstreamError(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{reply: "   "})
	conv := mustCreateConversation(t, svc)
	if _, err := svc.PostMessage(context.Background(), conv.ID, "hello"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestPostMessage_RateLimited(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(), &stubResponder{reply: "x"}, denyLimiter{}, nil, ConversationSettings{})
	conv := mustCreateConversation(t, svc)

	if _, err := svc.PostMessage(context.Background(), conv.ID, "hello"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	msgs, _ := svc.ListMessages(context.Background(), conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("expected nothing persisted when rate limited")
	}
}

func TestPostMessage_StorageError(t *testing.T) {
	store := repository.NewMemoryStore()
	msgs := failingMessageRepo{MessageRepository: store.Messages(), appendErr: errors.New("disk full")}
	svc := NewConversationService(zap.NewNop(), store.Conversations(), msgs, &stubResponder{reply: "x"}, nil, nil, ConversationSettings{})
	conv := mustCreateConversation(t, svc)

	if _, err := svc.PostMessage(context.Background(), conv.ID, "hello"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestPostMessage_ReflectedInNextListAndIdempotent(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	for i := 0; i < 3; i++ {
		if _, err := svc.PostMessage(ctx, conv.ID, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		msgs, err := svc.ListMessages(ctx, conv.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(msgs) != (i+1)*2 {
			t.Fatalf("expected %d messages, got %d", (i+1)*2, len(msgs))
		}
		for j := 1; j < len(msgs); j++ {
			if msgs[j].Timestamp.Before(msgs[j-1].Timestamp) || msgs[j].Seq <= msgs[j-1].Seq {
				t.Fatalf("messages out of order at %d", j)
			}
		}
	}

	first, _ := svc.ListMessages(ctx, conv.ID)
	second, _ := svc.ListMessages(ctx, conv.ID)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical sequences without intervening writes")
	}
}

func TestPostMessage_ConcurrentCalls_ScenarioD(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{delay: 5 * time.Millisecond})
	ctx := context.Background()
	conv := mustCreateConversation(t, svc)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, content := range []string{"A", "B"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			if _, err := svc.PostMessage(ctx, conv.ID, content); err != nil {
				errs <- err
			}
		}(content)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	pos := map[string]int{}
	users, assistants := 0, 0
	for i, m := range msgs {
		pos[string(m.Role)+":"+m.Content] = i
		if m.Role == domain.RoleUser {
			users++
		} else {
			assistants++
		}
	}
	if users != 2 || assistants != 2 {
		t.Fatalf("expected 2 user and 2 assistant messages, got %d/%d", users, assistants)
	}
	for _, c := range []string{"A", "B"} {
		u, okU := pos["user:"+c]
		a, okA := pos["assistant:re: "+c]
		if !okU || !okA {
			t.Fatalf("missing pair for %s: %+v", c, msgs)
		}
		if u > a {
			t.Fatalf("expected user %s before its reply", c)
		}
	}
}

func TestQuickAction_RecognizedTags(t *testing.T) {
	observer := &recordingObserver{}
	store := repository.NewMemoryStore()
	svc := NewConversationService(zap.NewNop(), store.Conversations(), store.Messages(), NewKeywordResponder(), nil, observer, ConversationSettings{})

	for _, qa := range QuickActions() {
		out, err := svc.QuickAction(context.Background(), qa.Action)
		if err != nil {
			t.Fatalf("expected no error for %s, got %v", qa.Action, err)
		}
		if strings.TrimSpace(out.Content) == "" {
			t.Fatalf("expected content for %s", qa.Action)
		}
	}
	if len(observer.kinds) != len(QuickActions()) || observer.kinds[0] != "quick_action" {
		t.Fatalf("expected quick action generations observed, got %+v", observer.kinds)
	}
}

func TestQuickAction_NormalizesTag(t *testing.T) {
	svc, _ := newTestConversationService(NewKeywordResponder())
	if _, err := svc.QuickAction(context.Background(), "  Wellness "); err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}
}

func TestQuickAction_UnknownTag(t *testing.T) {
	svc, _ := newTestConversationService(NewKeywordResponder())
	for _, tag := range []string{"", "surgery", "emergency!"} {
		if _, err := svc.QuickAction(context.Background(), tag); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", tag, err)
		}
	}
}

func TestQuickAction_Emergency_ScenarioB(t *testing.T) {
	svc, store := newTestConversationService(NewKeywordResponder())
	ctx := context.Background()

	out, err := svc.QuickAction(ctx, "emergency")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out.Content, "emergency") || !strings.Contains(out.Content, "911") {
		t.Fatalf("expected emergency guidance, got %q", out.Content)
	}

	// Sin efectos secundarios: no se creo ninguna conversacion.
	if _, err := store.Messages().Append(ctx, domain.InsertMessage{ConversationID: "any", Role: domain.RoleUser, Content: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected no conversations in store, got %v", err)
	}
}

func TestQuickAction_UpstreamError(t *testing.T) {
	svc, _ := newTestConversationService(&stubResponder{err: errors.New("down")})
	if _, err := svc.QuickAction(context.Background(), "wellness"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestConversationService_NotConfigured(t *testing.T) {
	var svc *ConversationService
	if _, err := svc.CreateConversation(context.Background(), domain.InsertConversation{}); !errors.Is(err, ErrConversationServiceNotConfigured) {
		t.Fatalf("expected ErrConversationServiceNotConfigured, got %v", err)
	}
	if _, err := svc.QuickAction(context.Background(), "wellness"); !errors.Is(err, ErrConversationServiceNotConfigured) {
		t.Fatalf("expected ErrConversationServiceNotConfigured, got %v", err)
	}
}
