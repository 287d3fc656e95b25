package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"inferd/internal/model"
	"inferd/pkg/types"
)

// Backend is the pluggable compute step behind the generate pipeline. It
// produces generated token ids, emitting each output unit through emit;
// tokenization and decoding stay in the engine. Implementations must return
// promptly once ctx is done.
type Backend interface {
	Name() string
	Generate(ctx context.Context, h *model.Handle, promptTokens []int, settings types.GenerationSettings, emit func(ids []int) error) ([]int, error)
}

// SelectBackend resolves a backend from an explicit name, or from the model
// file extension when name is empty. The set is closed: "echo" and "llama".
func SelectBackend(name, modelPath string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "echo":
		return echoBackend{}, nil
	case "llama":
		return newLlamaBackend()
	case "":
		if strings.EqualFold(filepath.Ext(modelPath), ".gguf") && llamaBuilt {
			return newLlamaBackend()
		}
		return echoBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// echoBackend is the deterministic default compute backend. It performs no
// neural forward pass: it replays the prompt tokens (capped at the token
// budget for the request) one id per output unit. Useful for development,
// tests and builds without the llama runtime.
type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }

func (echoBackend) Generate(ctx context.Context, h *model.Handle, promptTokens []int, settings types.GenerationSettings, emit func(ids []int) error) ([]int, error) {
	limit := settings.MaxTokens
	if limit <= 0 || limit > len(promptTokens) {
		limit = len(promptTokens)
	}
	out := make([]int, 0, limit)
	for i := 0; i < limit; i++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		id := promptTokens[i]
		out = append(out, id)
		if emit != nil {
			if err := emit([]int{id}); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}
