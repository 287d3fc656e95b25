package assist

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"inferd/pkg/types"
)

type fakeGen struct {
	prompt string
	text   string
	err    error
}

func (g *fakeGen) Generate(_ context.Context, prompt string, _ types.GenerationSettings) (*types.GenerateResponse, error) {
	g.prompt = prompt
	if g.err != nil {
		return nil, g.err
	}
	return &types.GenerateResponse{Text: g.text}, nil
}

func TestSummarize(t *testing.T) {
	gen := &fakeGen{text: "  A short summary.  "}
	a := New(gen, types.GenerationSettings{})
	got, err := a.Summarize(context.Background(), "long input text")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "A short summary." {
		t.Fatalf("summary = %q", got)
	}
	if !strings.Contains(gen.prompt, "long input text") {
		t.Fatalf("prompt missing input: %q", gen.prompt)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	a := New(&fakeGen{}, types.GenerationSettings{})
	if _, err := a.Summarize(context.Background(), "  "); !IsEmptyInput(err) {
		t.Fatalf("expected empty-input error, got %v", err)
	}
}

func TestSummarizePropagatesError(t *testing.T) {
	wantErr := errors.New("backend down")
	a := New(&fakeGen{err: wantErr}, types.GenerationSettings{})
	if _, err := a.Summarize(context.Background(), "text"); !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestTagsParsing(t *testing.T) {
	gen := &fakeGen{text: "Go, concurrency\n- Caching, go, CACHING, networking, extra, overflow"}
	a := New(gen, types.GenerationSettings{})
	got, err := a.Tags(context.Background(), "an article about go")
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	want := []string{"go", "concurrency", "caching", "networking", "extra"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
}

func TestCategorize(t *testing.T) {
	gen := &fakeGen{text: "  Infrastructure\n"}
	a := New(gen, types.GenerationSettings{})
	got, err := a.Categorize(context.Background(), "server provisioning runbook", []string{"docs", "infrastructure", "billing"})
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if got != "infrastructure" {
		t.Fatalf("category = %q", got)
	}
}

func TestCategorizeFallsBackToFirst(t *testing.T) {
	gen := &fakeGen{text: "something else entirely"}
	a := New(gen, types.GenerationSettings{})
	got, err := a.Categorize(context.Background(), "text", []string{"docs", "billing"})
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if got != "docs" {
		t.Fatalf("category = %q", got)
	}
}
