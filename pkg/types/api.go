package types

// GenerateRequest represents a synchronous or streaming generation request.
type GenerateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Sampling parameters; omitted fields use engine defaults.
	Settings GenerationSettings `json:"settings"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	// Generated completion text.
	Text string `json:"text"`
	// True when the answer came from the response cache.
	// example: false
	Cached bool `json:"cached" example:"false"`
	// Prompt token count after tokenization.
	// example: 9
	PromptTokens int `json:"prompt_tokens" example:"9"`
	// Wall-clock duration of the request in milliseconds.
	// example: 184
	DurationMs int64 `json:"duration_ms" example:"184"`
}

// EmbedRequest carries one or more texts to embed.
type EmbedRequest struct {
	// Single text; used by POST /embed.
	Text string `json:"text,omitempty"`
	// Multiple texts; used by POST /embed/batch. Order is preserved.
	Texts []string `json:"texts,omitempty"`
}

// EmbedResponse returns vectors in input order.
type EmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	// Vector dimensionality.
	// example: 256
	Dimension int `json:"dimension" example:"256"`
}

// RagQueryRequest is the payload for POST /rag/query.
type RagQueryRequest struct {
	// Natural-language question.
	// example: What changed in release 1.4?
	Query string `json:"query" example:"What changed in release 1.4?"`
	// Maximum number of sources to retrieve.
	// example: 5
	Limit int `json:"limit,omitempty" example:"5"`
}

// TaskRequest is the payload for the POST /tasks/* helpers.
type TaskRequest struct {
	// Input text for the task.
	Text string `json:"text"`
	// Optional label set for categorization tasks.
	Categories []string `json:"categories,omitempty"`
}

// TaskResponse wraps a task helper result.
type TaskResponse struct {
	Result string `json:"result"`
}

// ReloadRequest names the model file to swap in.
type ReloadRequest struct {
	Path string `json:"path" example:"/models/llama-3.1-8b-Q4_K_M.gguf"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// CacheStats reports hit/miss counters and occupancy for one cache.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	// Entries currently held.
	// example: 37
	Entries int `json:"entries" example:"37"`
	// Tokens or bytes counted against the cache budget.
	// example: 52210
	BudgetUsed int64 `json:"budget_used" example:"52210"`
}

// MemorySnapshot is a point-in-time estimate of process memory usage.
type MemorySnapshot struct {
	// Bytes mapped for the current model file.
	ModelBytes uint64 `json:"model_bytes"`
	// Estimated bytes held by the caching subsystem.
	CacheBytes uint64 `json:"cache_bytes"`
	// Go runtime heap in use.
	RuntimeBytes uint64 `json:"runtime_bytes"`
	// Configured process memory limit; 0 means unlimited.
	LimitBytes uint64 `json:"limit_bytes"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	// Total completed generations (sync + streaming).
	Generations uint64 `json:"generations"`
	// Streaming generations cancelled by the caller.
	Cancellations uint64 `json:"cancellations"`
	// Requests rejected by validation (over-length prompts).
	Rejections uint64 `json:"rejections"`
	// Cleanup passes triggered by memory pressure.
	Cleanups uint64 `json:"cleanups"`
	// Response cache counters.
	ResponseCache CacheStats `json:"response_cache"`
	// Token cache counters (all three sub-maps combined).
	TokenCache CacheStats `json:"token_cache"`
	// Memory estimate at the time of the call.
	Memory MemorySnapshot `json:"memory"`
	// Current model, if loaded.
	Model *Model `json:"model,omitempty"`
	// Device the model runs on (cpu, gpu, cuda:N).
	// example: cpu
	Device string `json:"device,omitempty" example:"cpu"`
	// Uptime of the engine in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
