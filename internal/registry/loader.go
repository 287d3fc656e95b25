// Package registry discovers model files on disk and derives display
// metadata from their filenames.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

var quantPattern = regexp.MustCompile(`(?i)\bq\d[_a-z0-9]*`)

// LoadDir scans a directory for *.gguf files and builds a registry from
// filenames. ID is the full filename (including extension); Path is the
// absolute file path. Quant and Family are best-effort filename parses.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{
			ID:     name,
			Name:   name,
			Path:   filepath.Join(abs, name),
			Quant:  parseQuant(name),
			Family: parseFamily(name),
		})
	}
	return models, nil
}

// parseQuant extracts a quantization tag like "Q4_K_M" from a filename.
func parseQuant(name string) string {
	m := quantPattern.FindString(name)
	return strings.ToUpper(m)
}

// parseFamily takes the leading alphabetic run of the filename, so
// "llama-3.1-8b-q4_k_m.gguf" yields "llama".
func parseFamily(name string) string {
	base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	for i, r := range base {
		if r < 'a' || r > 'z' {
			return base[:i]
		}
	}
	return base
}
