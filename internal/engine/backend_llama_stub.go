//go:build !llama

package engine

// This stub is compiled when the 'llama' build tag is NOT set, keeping
// default builds and CI CGO-free. The real backend lives in
// backend_llama.go (tagged 'llama').

// llamaBuilt indicates whether the binary carries real llama support.
var llamaBuilt = false

func newLlamaBackend() (Backend, error) {
	return nil, ErrBackendUnavailable("llama support not built (missing 'llama' build tag)")
}
