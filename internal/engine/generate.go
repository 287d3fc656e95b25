package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"inferd/internal/cache"
	"inferd/internal/model"
	"inferd/pkg/types"
)

// Sampling defaults applied when the request leaves a field at zero.
const (
	defaultMaxTokens   = 128
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	defaultTopK        = 40
)

// errCancelled stops the backend from inside the emit callback when the
// caller's cancel handle flips.
var errCancelled = errors.New("generation cancelled")

// CancelHandle lets a caller stop an in-flight streaming generation
// without tearing down its context. Polled once per emitted chunk.
type CancelHandle struct {
	flag atomic.Bool
}

func NewCancelHandle() *CancelHandle { return &CancelHandle{} }

// Cancel requests the generation to stop at the next chunk boundary.
func (h *CancelHandle) Cancel() { h.flag.Store(true) }

// Cancelled reports whether Cancel has been called.
func (h *CancelHandle) Cancelled() bool { return h != nil && h.flag.Load() }

func applyDefaults(s types.GenerationSettings) types.GenerationSettings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaultMaxTokens
	}
	if s.Temperature <= 0 {
		s.Temperature = defaultTemperature
	}
	if s.TopP <= 0 {
		s.TopP = defaultTopP
	}
	if s.TopK <= 0 {
		s.TopK = defaultTopK
	}
	return s
}

// Generate runs the synchronous pipeline: response cache lookup, tokenize,
// length validation, backend generation, decode, then store. A cache hit
// returns before any admission or tokenization work.
func (e *Engine) Generate(ctx context.Context, prompt string, settings types.GenerationSettings) (*types.GenerateResponse, error) {
	start := time.Now()
	if strings.TrimSpace(prompt) == "" {
		return nil, emptyPromptError{}
	}
	h := e.snapshotHandle()
	if !h.Ready() {
		return nil, ErrNotReady("model or tokenizer not loaded")
	}
	settings = applyDefaults(settings)

	key := cache.ResponseKey(prompt, settings.Temperature, settings.TopP, settings.MaxTokens)
	if text, ok := e.responses.Get(key); ok {
		return &types.GenerateResponse{
			Text:       text,
			Cached:     true,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	var resp *types.GenerateResponse
	err := e.pool.run(ctx, func() error {
		promptTokens, err := e.tokenize(h, prompt)
		if err != nil {
			return err
		}
		if err := e.checkLength(h, len(promptTokens), settings.MaxTokens); err != nil {
			return err
		}

		genKey := strconv.FormatUint(key, 16)
		outTokens, ok := e.tokens.GetTokens(cache.GeneratedTokens, genKey)
		if !ok {
			outTokens, err = e.backend.Generate(ctx, h, promptTokens, settings, nil)
			if err != nil {
				return err
			}
			e.tokens.PutTokens(cache.GeneratedTokens, genKey, outTokens)
		}

		text := e.decode(h, outTokens)
		e.responses.Put(key, text)
		e.generations.Add(1)
		resp = &types.GenerateResponse{
			Text:         text,
			PromptTokens: len(promptTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.maybeCleanup()
	return resp, nil
}

// GenerateStream runs the pipeline with per-chunk delivery. onChunk receives
// each decoded chunk in order; an error from it aborts the stream. The
// cancel handle is polled once per chunk; cancellation returns the partial
// text accumulated so far with a nil error. Streaming responses bypass the
// response cache, but a run that completes uncancelled still populates the
// generated-token cache.
func (e *Engine) GenerateStream(ctx context.Context, prompt string, settings types.GenerationSettings, cancel *CancelHandle, onChunk func(text string) error) (*types.GenerateResponse, error) {
	start := time.Now()
	if strings.TrimSpace(prompt) == "" {
		return nil, emptyPromptError{}
	}
	h := e.snapshotHandle()
	if !h.Ready() {
		return nil, ErrNotReady("model or tokenizer not loaded")
	}
	settings = applyDefaults(settings)

	var resp *types.GenerateResponse
	err := e.pool.run(ctx, func() error {
		promptTokens, err := e.tokenize(h, prompt)
		if err != nil {
			return err
		}
		if err := e.checkLength(h, len(promptTokens), settings.MaxTokens); err != nil {
			return err
		}

		// Decode the whole sequence each chunk and emit the new suffix.
		// Per-id decoding would drop the word-boundary context the
		// tokenizer needs to place spaces.
		var (
			allIDs []int
			text   string
		)
		outTokens, genErr := e.backend.Generate(ctx, h, promptTokens, settings, func(ids []int) error {
			if cancel.Cancelled() {
				return errCancelled
			}
			allIDs = append(allIDs, ids...)
			full := h.Tokenizer.Decode(allIDs)
			chunk := full[len(text):]
			text = full
			return onChunk(chunk)
		})
		cancelled := errors.Is(genErr, errCancelled)
		if genErr != nil && !cancelled {
			return genErr
		}
		if cancelled {
			e.cancellations.Add(1)
		} else {
			key := cache.ResponseKey(prompt, settings.Temperature, settings.TopP, settings.MaxTokens)
			e.tokens.PutTokens(cache.GeneratedTokens, strconv.FormatUint(key, 16), outTokens)
			e.generations.Add(1)
		}
		resp = &types.GenerateResponse{
			Text:         text,
			PromptTokens: len(promptTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.maybeCleanup()
	return resp, nil
}

// tokenize encodes prompt, serving repeats from the prompt-token cache.
func (e *Engine) tokenize(h *model.Handle, prompt string) ([]int, error) {
	if ids, ok := e.tokens.GetTokens(cache.PromptTokens, prompt); ok {
		return ids, nil
	}
	ids := h.Tokenizer.Encode(prompt)
	e.tokens.PutTokens(cache.PromptTokens, prompt, ids)
	return ids, nil
}

// checkLength rejects prompts whose token count exceeds the per-request
// token budget or the model context. Generation never runs on a rejected
// input.
func (e *Engine) checkLength(h *model.Handle, promptTokens, maxTokens int) error {
	limit := maxTokens
	if h.Config.ContextLength > 0 && h.Config.ContextLength < limit {
		limit = h.Config.ContextLength
	}
	if promptTokens > limit {
		e.rejections.Add(1)
		return promptTooLongError{tokens: promptTokens, limit: limit}
	}
	return nil
}

// decode turns generated token ids into text, serving repeats from the
// decoded-text cache.
func (e *Engine) decode(h *model.Handle, ids []int) string {
	key := cache.TokensKey(ids)
	if text, ok := e.tokens.GetText(key); ok {
		return text
	}
	text := h.Tokenizer.Decode(ids)
	e.tokens.PutText(key, text, len(ids))
	return text
}
