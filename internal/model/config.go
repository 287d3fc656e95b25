package model

import (
	"inferd/internal/gguf"
)

// Config holds the hyperparameters derived from GGUF metadata. Every field
// has a fallback applied when its source key is absent, so a loaded model
// never carries a silent zero.
type Config struct {
	Architecture  string
	VocabSize     int     // llama.vocab_size or len(tokenizer.ggml.tokens); fallback 32000
	HiddenSize    int     // <arch>.embedding_length; fallback 4096
	NumLayers     int     // <arch>.block_count; fallback 32
	NumHeads      int     // <arch>.attention.head_count; fallback 32
	NumKVHeads    int     // <arch>.attention.head_count_kv; fallback NumHeads
	ContextLength int     // <arch>.context_length; fallback 2048
	NormEps       float32 // <arch>.attention.layer_norm_rms_epsilon; fallback 1e-5
	RopeTheta     float32 // <arch>.rope.freq_base; fallback 10000
}

// Fallbacks used when the corresponding metadata key is absent.
const (
	DefaultVocabSize     = 32000
	DefaultHiddenSize    = 4096
	DefaultNumLayers     = 32
	DefaultNumHeads      = 32
	DefaultContextLength = 2048
	DefaultNormEps       = float32(1e-5)
	DefaultRopeTheta     = float32(10000)
)

// DeriveConfig converts parsed GGUF metadata into a Config. Keys are looked
// up under the architecture prefix (e.g. "llama.context_length"); an empty
// architecture still yields a fully defaulted config.
func DeriveConfig(md *gguf.Metadata) Config {
	arch := md.Architecture()
	cfg := Config{
		Architecture:  arch,
		VocabSize:     DefaultVocabSize,
		HiddenSize:    DefaultHiddenSize,
		NumLayers:     DefaultNumLayers,
		NumHeads:      DefaultNumHeads,
		ContextLength: DefaultContextLength,
		NormEps:       DefaultNormEps,
		RopeTheta:     DefaultRopeTheta,
	}

	if v, ok := md.Uint32(arch + ".vocab_size"); ok {
		cfg.VocabSize = int(v)
	} else if toks, ok := md.StringArray(gguf.KeyTokenizerTokens); ok && len(toks) > 0 {
		cfg.VocabSize = len(toks)
	}
	if v, ok := md.Uint32(arch + gguf.KeyEmbeddingLength); ok {
		cfg.HiddenSize = int(v)
	}
	if v, ok := md.Uint32(arch + gguf.KeyBlockCount); ok {
		cfg.NumLayers = int(v)
	}
	if v, ok := md.Uint32(arch + gguf.KeyAttentionHeadCount); ok {
		cfg.NumHeads = int(v)
	}
	if v, ok := md.Uint32(arch + gguf.KeyAttentionHeadCountKV); ok {
		cfg.NumKVHeads = int(v)
	} else {
		cfg.NumKVHeads = cfg.NumHeads
	}
	if v, ok := md.Uint32(arch + gguf.KeyContextLength); ok {
		cfg.ContextLength = int(v)
	}
	if v, ok := md.Float32(arch + gguf.KeyAttentionNormEps); ok {
		cfg.NormEps = v
	}
	if v, ok := md.Float32(arch + gguf.KeyRopeFreqBase); ok {
		cfg.RopeTheta = v
	}
	return cfg
}
