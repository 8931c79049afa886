package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"health-chat/internal/domain"
)

// ErrorKind clasifica los fallos devueltos por la API de conversaciones.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindConflict    ErrorKind = "conflict"
	KindUpstream    ErrorKind = "upstream"
	KindStorage     ErrorKind = "storage"
	KindTransport   ErrorKind = "transport"
)

// APIError es el error que devuelve APIClient para cualquier llamada fallida.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("chat api %s (status=%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("chat api %s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind indica si err es un *APIError del tipo indicado.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return KindUpstream
	default:
		return KindStorage
	}
}

// APIClient habla con la API REST de conversaciones.
type APIClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAPIClient construye un cliente apuntando a baseURL.
func NewAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *APIClient) CreateConversation(ctx context.Context, userID, title string) (domain.Conversation, error) {
	var conv domain.Conversation
	body := map[string]string{"userId": userID, "title": title}
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (c *APIClient) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (c *APIClient) PostMessage(ctx context.Context, conversationID, content string) (domain.Message, error) {
	var reply domain.Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", body, &reply); err != nil {
		return domain.Message{}, err
	}
	return reply, nil
}

func (c *APIClient) QuickAction(ctx context.Context, action string) (string, error) {
	var reply domain.QuickActionReply
	if err := c.do(ctx, http.MethodPost, "/quick-actions", map[string]string{"action": action}, &reply); err != nil {
		return "", err
	}
	return reply.Content, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindTransport, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		c.logger.Debug("chat api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg),
		)
		return &APIError{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Kind: KindTransport, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}
