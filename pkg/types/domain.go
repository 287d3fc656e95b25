package types

// GenerationSettings captures the sampling parameters for one request.
// The zero value means "use engine defaults".
type GenerationSettings struct {
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences. Generation stops when any sequence is matched.
	Stop []string `json:"stop,omitempty"`
	// Random seed for reproducibility; 0 or omitted lets the engine choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// Model represents a discoverable or loadable LLM model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}

// RagSource describes one retrieved document backing a RAG answer.
type RagSource struct {
	// Document identifier in the vector store.
	// example: doc-42
	DocumentID string `json:"document_id" example:"doc-42"`
	// Document title.
	// example: Release notes 1.4
	Title string `json:"title" example:"Release notes 1.4"`
	// Best-matching excerpt, truncated to 300 characters.
	Snippet string `json:"snippet"`
	// Relevance score in [0,1].
	// example: 0.82
	Score float64 `json:"score" example:"0.82"`
}

// RagResponse is the result of a retrieval-augmented query.
type RagResponse struct {
	// Generated answer text.
	Answer string `json:"answer"`
	// Sources ordered by relevance. Sources past the context window are
	// still listed even though they did not contribute prompt context.
	Sources []RagSource `json:"sources"`
	// Confidence in [0,1]; 0 when no source qualified.
	// example: 0.61
	Confidence float64 `json:"confidence" example:"0.61"`
	// Number of context characters actually placed in the prompt.
	// example: 912
	ContextChars int `json:"context_chars_used" example:"912"`
}

// Embedding pairs a vector with the chunk of text it was computed from.
type Embedding struct {
	// Chunk identity within its document.
	ChunkID string `json:"chunk_id"`
	// Character span [Start, End) of the chunk in the source text.
	Start int `json:"start"`
	End   int `json:"end"`
	// Unit-length vector.
	Vector []float32 `json:"vector"`
}
