package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/engine"
	"inferd/internal/gguf"
	"inferd/internal/model"
	"inferd/pkg/types"
)

// Service defines the engine methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, prompt string, settings types.GenerationSettings) (*types.GenerateResponse, error)
	GenerateStream(ctx context.Context, prompt string, settings types.GenerationSettings, cancel *engine.CancelHandle, onChunk func(chunk string) error) (*types.GenerateResponse, error)
	Ready() bool
	Stats() types.StatsResponse
}

// EmbedService produces vectors for one or many texts.
type EmbedService interface {
	Embed(text string) []float32
	EmbedBatch(texts []string) [][]float32
	Dimension() int
}

// RagService answers questions from the indexed corpus.
type RagService interface {
	Query(ctx context.Context, q string, limit int) (*types.RagResponse, error)
}

// TaskService exposes the one-shot assistant helpers.
type TaskService interface {
	Summarize(ctx context.Context, text string) (string, error)
	Tags(ctx context.Context, text string) ([]string, error)
	Categorize(ctx context.Context, text string, categories []string) (string, error)
}

// Deps bundles the collaborators behind the HTTP surface. Rag and Tasks
// may be nil; their routes then return 503.
type Deps struct {
	Engine   Service
	Embedder EmbedService
	Rag      RagService
	Tasks    TaskService
	// Models lists discoverable models; nil serves an empty list.
	Models func() []types.Model
	// Reload swaps the serving model; nil returns 503.
	Reload func(path string) error
}

func NewMux(deps Deps) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/generate", handleGenerate(deps.Engine))
	r.Post("/generate/stream", handleGenerateStream(deps.Engine))
	r.Post("/embed", handleEmbed(deps.Embedder))
	r.Post("/embed/batch", handleEmbedBatch(deps.Embedder))
	r.Post("/rag/query", handleRagQuery(deps.Rag))
	r.Post("/tasks/summarize", handleTask(deps.Tasks, taskSummarize))
	r.Post("/tasks/tags", handleTask(deps.Tasks, taskTags))
	r.Post("/tasks/category", handleTask(deps.Tasks, taskCategory))

	r.Post("/models/reload", handleReload(deps.Reload))

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models := []types.Model{}
		if deps.Models != nil {
			models = deps.Models()
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Engine.Stats())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Engine.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces the JSON content type and the body limit before
// decoding into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// an over-limit body also lands here; 400 avoids leaking size details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requestContext joins the request context with the server base context
// and applies the configured generation timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if generateTimeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
		return tctx, func() { tcancel(); cancel() }
	}
	return ctx, cancel
}

// @Summary      Generate a completion
// @Accept       json
// @Produce      json
// @Param        request body types.GenerateRequest true "prompt and settings"
// @Success      200 {object} types.GenerateResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      422 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		start := time.Now()
		logStart(r, "generate")
		resp, err := svc.Generate(ctx, req.Prompt, req.Settings)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeEngineError(w, err)
			logEnd(r, "generate", status, time.Since(start), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		logEnd(r, "generate", http.StatusOK, time.Since(start), nil)
	}
}

// streamChunk is one NDJSON line of a streaming response.
type streamChunk struct {
	Delta        string `json:"delta,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Cancelled    bool   `json:"cancelled,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// @Summary      Generate a completion as an NDJSON stream
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request body types.GenerateRequest true "prompt and settings"
// @Success      200 {object} streamChunk
// @Router       /generate/stream [post]
func handleGenerateStream(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		// a disconnecting client cancels generation at the next chunk
		handle := engine.NewCancelHandle()
		go func() {
			<-ctx.Done()
			handle.Cancel()
		}()

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		enc := json.NewEncoder(streamWriter(w, r))

		start := time.Now()
		logStart(r, "generate_stream")
		headerSent := false
		resp, err := svc.GenerateStream(ctx, req.Prompt, req.Settings, handle, func(chunk string) error {
			headerSent = true
			if err := enc.Encode(streamChunk{Delta: chunk}); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			return nil
		})
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			if headerSent {
				// stream already started; the connection is the only channel left
				logEnd(r, "generate_stream", http.StatusOK, time.Since(start), err)
				return
			}
			status := writeEngineError(w, err)
			logEnd(r, "generate_stream", status, time.Since(start), err)
			return
		}
		enc.Encode(streamChunk{
			Done:         true,
			Cancelled:    handle.Cancelled(),
			PromptTokens: resp.PromptTokens,
			DurationMs:   resp.DurationMs,
		})
		if flush != nil {
			flush()
		}
		logEnd(r, "generate_stream", http.StatusOK, time.Since(start), nil)
	}
}

// @Summary      Embed a single text
// @Accept       json
// @Produce      json
// @Param        request body types.EmbedRequest true "text"
// @Success      200 {object} types.EmbedResponse
// @Router       /embed [post]
func handleEmbed(svc EmbedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.EmbedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		writeJSON(w, http.StatusOK, types.EmbedResponse{
			Vectors:   [][]float32{svc.Embed(req.Text)},
			Dimension: svc.Dimension(),
		})
	}
}

// @Summary      Embed a batch of texts, order-preserving
// @Accept       json
// @Produce      json
// @Param        request body types.EmbedRequest true "texts"
// @Success      200 {object} types.EmbedResponse
// @Router       /embed/batch [post]
func handleEmbedBatch(svc EmbedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.EmbedRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Texts) == 0 {
			writeJSONError(w, http.StatusBadRequest, "texts is required")
			return
		}
		writeJSON(w, http.StatusOK, types.EmbedResponse{
			Vectors:   svc.EmbedBatch(req.Texts),
			Dimension: svc.Dimension(),
		})
	}
}

// @Summary      Answer a question from the indexed corpus
// @Accept       json
// @Produce      json
// @Param        request body types.RagQueryRequest true "query"
// @Success      200 {object} types.RagResponse
// @Router       /rag/query [post]
func handleRagQuery(svc RagService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "rag is not configured")
			return
		}
		var req types.RagQueryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeJSONError(w, http.StatusBadRequest, "query is required")
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		resp, err := svc.Query(ctx, req.Query, req.Limit)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type taskKind int

const (
	taskSummarize taskKind = iota
	taskTags
	taskCategory
)

// @Summary      Run a one-shot assistant task
// @Accept       json
// @Produce      json
// @Param        request body types.TaskRequest true "input text"
// @Success      200 {object} types.TaskResponse
// @Router       /tasks/{task} [post]
func handleTask(svc TaskService, kind taskKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "tasks are not configured")
			return
		}
		var req types.TaskRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()

		var (
			result string
			err    error
		)
		switch kind {
		case taskSummarize:
			result, err = svc.Summarize(ctx, req.Text)
		case taskTags:
			var tags []string
			tags, err = svc.Tags(ctx, req.Text)
			result = strings.Join(tags, ", ")
		case taskCategory:
			result, err = svc.Categorize(ctx, req.Text, req.Categories)
		}
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.TaskResponse{Result: result})
	}
}

// @Summary      Swap the serving model
// @Accept       json
// @Produce      json
// @Param        request body types.ReloadRequest true "model path"
// @Success      200 {object} types.TaskResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      422 {object} types.ErrorResponse
// @Router       /models/reload [post]
func handleReload(reload func(path string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reload == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "reload is not configured")
			return
		}
		var req types.ReloadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			writeJSONError(w, http.StatusBadRequest, "path is required")
			return
		}
		if err := reload(req.Path); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.TaskResponse{Result: "reloaded"})
	}
}

// writeEngineError maps engine and model errors to HTTP status codes and
// writes the JSON error payload. Returns the status used.
func writeEngineError(w http.ResponseWriter, err error) int {
	var status int
	switch {
	case engine.IsEmptyPrompt(err):
		status = http.StatusBadRequest
	case engine.IsPromptTooLong(err):
		status = http.StatusUnprocessableEntity
	case engine.IsTooBusy(err):
		status = http.StatusTooManyRequests
		IncrementBackpressure("worker_pool")
	case engine.IsNotReady(err), engine.IsBackendUnavailable(err):
		status = http.StatusServiceUnavailable
	case model.IsNotFound(err):
		status = http.StatusNotFound
	case model.IsValidation(err), gguf.IsFormat(err):
		status = http.StatusUnprocessableEntity
	default:
		if he, ok := err.(HTTPError); ok {
			status = he.StatusCode()
		} else {
			status = http.StatusInternalServerError
		}
	}
	writeJSONError(w, status, err.Error())
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encoding response")
	}
}
