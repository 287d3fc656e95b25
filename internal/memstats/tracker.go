// Package memstats estimates process memory attributed to the model, the
// caching subsystem and the Go runtime, and decides when a cleanup pass is
// warranted.
package memstats

import (
	"runtime"

	"inferd/pkg/types"
)

// Source supplies process-level memory readings. It is injected so tests
// and alternative platforms can replace the runtime-based default.
type Source interface {
	// ProcessBytes returns the current estimated process memory in bytes.
	ProcessBytes() uint64
}

// RuntimeSource reads the Go runtime heap. It underestimates mapped model
// memory, which the tracker accounts for separately.
type RuntimeSource struct{}

func (RuntimeSource) ProcessBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse + ms.StackInuse
}

// CleanupThreshold is the fraction of the memory limit at which cleanup
// triggers.
const CleanupThreshold = 0.8

// Tracker combines a Source with per-component estimates.
type Tracker struct {
	source Source
	limit  uint64 // bytes; 0 = unlimited
}

// NewTracker builds a tracker; a nil source uses RuntimeSource.
func NewTracker(source Source, limitBytes uint64) *Tracker {
	if source == nil {
		source = RuntimeSource{}
	}
	return &Tracker{source: source, limit: limitBytes}
}

// Snapshot assembles a memory snapshot from the current source reading plus
// the caller-supplied model and cache estimates.
func (t *Tracker) Snapshot(modelBytes, cacheBytes uint64) types.MemorySnapshot {
	return types.MemorySnapshot{
		ModelBytes:   modelBytes,
		CacheBytes:   cacheBytes,
		RuntimeBytes: t.source.ProcessBytes(),
		LimitBytes:   t.limit,
	}
}

// OverThreshold reports whether estimated usage crossed the cleanup
// threshold of the configured limit. Always false with no limit.
func (t *Tracker) OverThreshold(modelBytes, cacheBytes uint64) bool {
	if t.limit == 0 {
		return false
	}
	total := modelBytes + cacheBytes + t.source.ProcessBytes()
	return float64(total) >= CleanupThreshold*float64(t.limit)
}
