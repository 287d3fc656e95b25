//go:build llama

package engine

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"

	"inferd/internal/model"
	"inferd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaBackend runs generation in-process through go-llama.cpp. The model
// is loaded per handle path on first use and kept for the handle lifetime.
type llamaBackend struct{}

func newLlamaBackend() (Backend, error) { return llamaBackend{}, nil }

func (llamaBackend) Name() string { return "llama" }

func (llamaBackend) Generate(ctx context.Context, h *model.Handle, promptTokens []int, settings types.GenerationSettings, emit func(ids []int) error) ([]int, error) {
	if h == nil || h.Tokenizer == nil {
		return nil, errors.New("llama backend requires a loaded tokenizer")
	}
	opts := []llama.ModelOption{llama.SetContext(h.Config.ContextLength)}
	if h.Params.GPULayers > 0 && h.Device != "cpu" {
		opts = append(opts, llama.SetGPULayers(h.Params.GPULayers))
	}
	m, err := llama.New(h.Path, opts...)
	if err != nil {
		return nil, err
	}
	defer m.Free()

	var (
		out     []int
		emitErr error
	)
	m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		ids := h.Tokenizer.Encode(tok)
		out = append(out, ids...)
		if emit != nil {
			if err := emit(ids); err != nil {
				emitErr = err
				return false
			}
		}
		return true
	})

	po := []llama.PredictOption{
		llama.SetTokens(maxOf(1, settings.MaxTokens)),
		llama.SetThreads(maxOf(1, h.Params.Threads)),
	}
	if settings.TopP > 0 {
		po = append(po, llama.SetTopP(float32(settings.TopP)))
	}
	if settings.TopK > 0 {
		po = append(po, llama.SetTopK(settings.TopK))
	}
	if settings.Temperature > 0 {
		po = append(po, llama.SetTemperature(float32(settings.Temperature)))
	}
	if settings.Seed != 0 {
		po = append(po, llama.SetSeed(int(settings.Seed)))
	}
	if len(settings.Stop) > 0 {
		po = append(po, llama.SetStopWords(settings.Stop...))
	}
	prompt := h.Tokenizer.Decode(promptTokens)
	if _, err := m.Predict(prompt, po...); err != nil {
		if emitErr != nil {
			return out, emitErr
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, err
	}
	if emitErr != nil {
		return out, emitErr
	}
	return out, nil
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
