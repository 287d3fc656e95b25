package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"inferd/internal/embed"
	"inferd/pkg/types"
)

// Generator is the answer-producing collaborator, satisfied by the
// inference engine.
type Generator interface {
	Generate(ctx context.Context, prompt string, settings types.GenerationSettings) (*types.GenerateResponse, error)
}

// Defaults for the retrieval pipeline.
const (
	DefaultLimit        = 5
	DefaultThreshold    = 0.3
	DefaultSnippetChars = 300
	DefaultContextChars = 2000
	DefaultChunkSize    = embed.DefaultChunkSize
	DefaultOverlap      = embed.DefaultOverlap
)

// FallbackAnswer is returned when no document scores above the similarity
// threshold.
const FallbackAnswer = "I don't have enough information in the indexed documents to answer that."

const answerTemplate = `Answer the question using only the context below. If the context does not contain the answer, say you do not know.

Context:
%s
Question: %s

Answer:`

// Candidate is a scored document flowing through the pipeline.
type Candidate struct {
	Document Document
	Snippet  string
	Score    float64
}

// RerankFunc reorders scored candidates before context assembly. The
// default sorts by score; a cross-encoder can be plugged in here.
type RerankFunc func(query string, cands []Candidate) []Candidate

func rerankByScore(_ string, cands []Candidate) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	return cands
}

// Options tunes the retrieval pipeline; zero values take the defaults
// above.
type Options struct {
	Limit        int
	Threshold    float64
	SnippetChars int
	ContextChars int
	ChunkSize    int
	Overlap      int
	Rerank       RerankFunc
	Settings     types.GenerationSettings
}

// Orchestrator runs retrieve, re-rank, assemble, generate.
type Orchestrator struct {
	embedder *embed.Embedder
	store    VectorStore
	gen      Generator
	opts     Options
	log      zerolog.Logger
}

func New(embedder *embed.Embedder, store VectorStore, gen Generator, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = DefaultSnippetChars
	}
	if opts.ContextChars <= 0 {
		opts.ContextChars = DefaultContextChars
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		opts.Overlap = DefaultOverlap
	}
	if opts.Rerank == nil {
		opts.Rerank = rerankByScore
	}
	return &Orchestrator{embedder: embedder, store: store, gen: gen, opts: opts, log: log}
}

// Query answers q from the indexed corpus. limit caps the number of
// sources; 0 uses the configured default.
func (o *Orchestrator) Query(ctx context.Context, q string, limit int) (*types.RagResponse, error) {
	if limit <= 0 || limit > o.opts.Limit {
		limit = o.opts.Limit
	}
	qv := o.embedder.Embed(q)

	pairs, err := o.store.GetAllVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve vectors: %w", err)
	}
	type scored struct {
		id    string
		score float64
	}
	var hits []scored
	for _, p := range pairs {
		if s := embed.Cosine(qv, p.Vector); s >= o.opts.Threshold {
			hits = append(hits, scored{id: p.DocumentID, score: s})
		}
	}
	if len(hits) == 0 {
		return &types.RagResponse{
			Answer:     FallbackAnswer,
			Sources:    []types.RagSource{},
			Confidence: 0,
		}, nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	cands := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		doc, err := o.store.GetDocument(ctx, h.id)
		if err != nil {
			o.log.Warn().Err(err).Str("doc", h.id).Msg("indexed document missing, skipping")
			continue
		}
		cands = append(cands, Candidate{
			Document: doc,
			Snippet:  o.bestSnippet(qv, doc.Content),
			Score:    h.score,
		})
	}
	if len(cands) == 0 {
		return &types.RagResponse{
			Answer:     FallbackAnswer,
			Sources:    []types.RagSource{},
			Confidence: 0,
		}, nil
	}
	cands = o.opts.Rerank(q, cands)

	// context assembly stops at the window boundary; later sources stay in
	// the reported list but contribute no prompt context
	var (
		ctxBuf     strings.Builder
		usedScores []float64
	)
	sources := make([]types.RagSource, 0, len(cands))
	for _, c := range cands {
		sources = append(sources, types.RagSource{
			DocumentID: c.Document.ID,
			Title:      c.Document.Title,
			Snippet:    c.Snippet,
			Score:      c.Score,
		})
	}
	for i, c := range cands {
		block := fmt.Sprintf("[Source %d: %s]\n%s\n\n", i+1, c.Document.Title, c.Snippet)
		if ctxBuf.Len()+len(block) > o.opts.ContextChars {
			break
		}
		ctxBuf.WriteString(block)
		usedScores = append(usedScores, c.Score)
	}

	prompt := fmt.Sprintf(answerTemplate, ctxBuf.String(), q)
	resp, err := o.gen.Generate(ctx, prompt, o.opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &types.RagResponse{
		Answer:       resp.Text,
		Sources:      sources,
		Confidence:   confidence(usedScores),
		ContextChars: ctxBuf.Len(),
	}, nil
}

// bestSnippet re-chunks content and returns the chunk most similar to the
// query vector, truncated to the snippet limit.
func (o *Orchestrator) bestSnippet(qv []float32, content string) string {
	chunks := embed.SplitWords(content, o.opts.ChunkSize, o.opts.Overlap)
	if len(chunks) == 0 {
		return ""
	}
	best := chunks[0].Text
	bestScore := -1.0
	for _, c := range chunks {
		if s := embed.Cosine(qv, o.embedder.Embed(c.Text)); s > bestScore {
			bestScore = s
			best = c.Text
		}
	}
	if len(best) > o.opts.SnippetChars {
		cut := o.opts.SnippetChars
		for cut > 0 && !utf8.RuneStart(best[cut]) {
			cut--
		}
		best = best[:cut] + "..."
	}
	return best
}

// confidence is the mean used-source score scaled down when fewer than
// three sources back the answer.
func confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	c := (sum / float64(len(scores))) * minF(1, float64(len(scores))/3)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
