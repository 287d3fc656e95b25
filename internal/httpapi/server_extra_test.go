package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// blockEngine blocks until the context is done; used to exercise the
// timeout path.
type blockEngine struct{ mockEngine }

func (b *blockEngine) Generate(ctx context.Context, _ string, _ types.GenerationSettings) (*types.GenerateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockEngine) GenerateStream(ctx context.Context, _ string, _ types.GenerationSettings, _ *engine.CancelHandle, _ func(string) error) (*types.GenerateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerateLogsWithZerologInfo(t *testing.T) {
	// Install a zerolog logger to exercise the zlog != nil branches
	SetLogger(zerolog.New(io.Discard))
	defer func() { zlog = nil }()

	h := NewMux(testDeps(&mockEngine{ready: true}))
	w := postJSON(t, h, "/generate?log=info", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with info logging, got %d", w.Code)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	// Enable CORS temporarily
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(testDeps(&mockEngine{ready: true}))
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestGenerateTimeoutReturns500(t *testing.T) {
	defer SetGenerateTimeoutSeconds(0)
	SetGenerateTimeoutSeconds(1)

	deps := testDeps(&mockEngine{ready: true})
	deps.Engine = &blockEngine{}
	h := NewMux(deps)
	w := postJSON(t, h, "/generate", `{"prompt":"x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on timeout, got %d", w.Code)
	}
}
