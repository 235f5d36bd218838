package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/richinex/carlos/config"
	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/session"
	"github.com/richinex/carlos/store"
)

// scriptedProvider answers every structured call with a canned happy path
// and streams a fixed response.
type scriptedProvider struct{}

func (scriptedProvider) Name() string  { return "scripted" }
func (scriptedProvider) Model() string { return "scripted" }

func (scriptedProvider) Chat(ctx context.Context, req llm.Request) (llm.Response, error) {
	content := req.Messages[0].Content
	switch {
	case strings.Contains(content, "summarizer"):
		return llm.Response{Content: `{"summary": "s", "tags": ["t"]}`}, nil
	case strings.Contains(content, "reasoning stage"):
		return llm.Response{Content: `{"is_context_sufficient": true, "reasoning": "fine"}`}, nil
	default:
		return llm.Response{Content: `{"response_text": "ok"}`}, nil
	}
}

func (scriptedProvider) StreamChat(ctx context.Context, req llm.Request, chunks chan<- string) (*llm.TokenUsage, error) {
	chunks <- "hello [waves] world"
	return &llm.TokenUsage{}, nil
}

func (scriptedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewSQLiteInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close(context.Background()) })

	settings, err := config.New()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	manager := session.NewManager(llm.NewClient(scriptedProvider{}), st, settings, zap.NewNop())
	t.Cleanup(func() { manager.ShutdownAll() })
	return New(context.Background(), manager, ":0", zap.NewNop())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStreamRequiresPrompt(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStreamEmitsSSEEventsEndingInDone(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream?prompt=hi&user=ana", nil)
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"marker"`) || !strings.Contains(body, "waves") {
		t.Errorf("body missing marker event: %q", body)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	last := lines[len(lines)-1]
	if !strings.Contains(last, `"type":"done"`) {
		t.Errorf("last event = %q, want done", last)
	}
}
