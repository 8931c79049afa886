package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"health-chat/internal/service"
)

func TestAPIClient_ErrorKinds(t *testing.T) {
	srv := newTestServer(t, service.NewKeywordResponder())
	client := NewAPIClient(srv.URL+"/", 5*time.Second, nil)
	ctx := context.Background()

	if _, err := client.ListMessages(ctx, "missing"); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.QuickAction(ctx, "unknown"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation, got %v", err)
	}

	conv, err := client.CreateConversation(ctx, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Title != "Health Consultation" || conv.UserID != "anonymous" {
		t.Fatalf("expected server defaults, got %+v", conv)
	}
	if _, err := client.PostMessage(ctx, conv.ID, " "); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	msgs, err := client.ListMessages(ctx, conv.ID)
	if err != nil || msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", msgs, err)
	}
}

func TestAPIClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusBadGateway, KindUpstream},
		{http.StatusConflict, KindConflict},
		{http.StatusInternalServerError, KindStorage},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			}))
			defer srv.Close()

			_, err := NewAPIClient(srv.URL, time.Second, nil).QuickAction(context.Background(), "wellness")
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Kind != tc.kind || apiErr.Status != tc.status || apiErr.Message != "boom" {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestAPIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAPIClient(url, time.Second, nil).CreateConversation(context.Background(), "", "")
	if !IsKind(err, KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
