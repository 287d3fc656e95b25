package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/gguf"
)

// Params are the engine parameters supplied at load time.
type Params struct {
	Threads       int
	ContextLength int
	GPULayers     int
	Device        string // "", "cpu", "gpu", "cuda:N"
	UseMmap       bool
}

// Handle is an immutable view of a loaded model. Reload builds a fresh
// Handle and the engine swaps it atomically; a Handle is never mutated
// after Load returns.
type Handle struct {
	Path      string
	Meta      *gguf.Metadata
	Config    Config
	Tokenizer *Tokenizer
	Params    Params

	// Device actually selected; Fallback is true when the preferred
	// accelerator was unavailable and CPU was used instead.
	Device   string
	Fallback bool

	data   []byte
	mapped bool
	file   *os.File
}

// manifest is the optional checksum sidecar discovered next to the model.
type manifest struct {
	SHA256Checksum string `json:"sha256_checksum"`
}

// Load opens, verifies and maps a GGUF model. tokenizer.json absence is
// non-fatal: the handle loads with a nil Tokenizer and the engine stays not
// ready until a reload finds one.
func Load(path string, p Params, log zerolog.Logger) (*Handle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound(path)
		}
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if fi.IsDir() {
		return nil, ErrValidation(fmt.Sprintf("model path %s is a directory", path))
	}

	if sum, ok := findManifestChecksum(path); ok {
		if err := verifyChecksum(path, sum); err != nil {
			return nil, err
		}
		log.Debug().Str("path", path).Msg("model checksum verified")
	} else {
		log.Warn().Str("path", path).Msg("no checksum manifest found, skipping verification")
	}

	h := &Handle{Path: path, Params: p}
	h.Device, h.Fallback = selectDevice(p.Device, p.GPULayers)
	if h.Fallback {
		log.Warn().Str("preferred", p.Device).Msg("preferred device unavailable, falling back to cpu")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	if p.UseMmap {
		data, err := gguf.MapFile(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap model: %w", err)
		}
		h.data = data
		h.mapped = true
		h.file = f
	} else {
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read model: %w", err)
		}
		h.data = data
	}

	md, err := gguf.Decode(h.data)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	h.Meta = md
	h.Config = DeriveConfig(md)
	if p.ContextLength > 0 && p.ContextLength < h.Config.ContextLength {
		h.Config.ContextLength = p.ContextLength
	}

	tokPath := filepath.Join(filepath.Dir(path), "tokenizer.json")
	tok, err := LoadTokenizer(tokPath)
	switch {
	case err == nil:
		h.Tokenizer = tok
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", tokPath).Msg("tokenizer.json not found, engine will not be ready")
	default:
		_ = h.Close()
		return nil, err
	}

	log.Info().
		Str("path", path).
		Str("arch", h.Config.Architecture).
		Str("device", h.Device).
		Uint64("tensors", md.Header.TensorCount).
		Int("ctx", h.Config.ContextLength).
		Msg("model loaded")
	return h, nil
}

// Ready reports whether the handle can serve tokenization and generation.
func (h *Handle) Ready() bool { return h != nil && h.Tokenizer != nil }

// ModelBytes is the memory attributed to the model: the mapped length.
func (h *Handle) ModelBytes() uint64 {
	if h == nil {
		return 0
	}
	return uint64(len(h.data))
}

// Close releases the mapping and the underlying file.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var first error
	if h.mapped && h.data != nil {
		if err := gguf.Unmap(h.data); err != nil {
			first = err
		}
	}
	h.data = nil
	if h.file != nil {
		if err := h.file.Close(); err != nil && first == nil {
			first = err
		}
		h.file = nil
	}
	return first
}

// findManifestChecksum looks for "<model>.manifest.json" and then
// "manifest.json" beside the model file and returns its sha256 field.
func findManifestChecksum(modelPath string) (string, bool) {
	candidates := []string{
		modelPath + ".manifest.json",
		filepath.Join(filepath.Dir(modelPath), "manifest.json"),
	}
	for _, p := range candidates {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var m manifest
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		if s := strings.TrimSpace(m.SHA256Checksum); s != "" {
			return strings.ToLower(s), true
		}
	}
	return "", false
}

// verifyChecksum streams the file through sha256 in 8KB chunks and compares
// against the expected hex digest.
func verifyChecksum(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for checksum: %w", err)
	}
	defer f.Close()
	hash := sha256.New()
	buf := make([]byte, 8*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read for checksum: %w", err)
		}
	}
	got := hex.EncodeToString(hash.Sum(nil))
	if got != expected {
		return ErrValidation(fmt.Sprintf("checksum mismatch: manifest %s, file %s", expected, got))
	}
	return nil
}
