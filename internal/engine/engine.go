package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/cache"
	"inferd/internal/memstats"
	"inferd/internal/model"
	"inferd/pkg/types"
)

// Options encapsulates all tunables for Engine construction.
type Options struct {
	ModelPath string
	Params    model.Params
	// Backend name; empty selects by model file extension.
	Backend string

	TokenBudget       int64
	ResponseCacheSize int
	ResponseTTL       time.Duration
	MemoryLimitBytes  uint64

	Workers    int
	QueueDepth int
	MaxWait    time.Duration

	// Metrics source for memory estimation; nil uses the runtime source.
	Source memstats.Source
	Logger zerolog.Logger
}

// Engine owns the model handle, both caches and the worker pool, and runs
// the tokenize/generate/decode pipeline. The handle is immutable once
// loaded; ReloadModel builds a new one and swaps it under the write lock.
type Engine struct {
	mu      sync.RWMutex // guards handle
	handle  *model.Handle
	backend Backend

	tokens    *cache.TokenCache
	responses *cache.ResponseCache
	tracker   *memstats.Tracker
	pool      *workerPool
	log       zerolog.Logger
	opts      Options
	startTime time.Time

	generations   atomic.Uint64
	cancellations atomic.Uint64
	rejections    atomic.Uint64
	cleanups      atomic.Uint64
}

// New constructs an Engine and, when ModelPath is set, loads the model.
// Tokenizer absence leaves the engine not ready but does not fail
// construction.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		tokens:    cache.NewTokenCache(opts.TokenBudget, opts.Logger),
		responses: cache.NewResponseCache(opts.ResponseCacheSize, opts.ResponseTTL),
		tracker:   memstats.NewTracker(opts.Source, opts.MemoryLimitBytes),
		pool:      newWorkerPool(opts.Workers, opts.QueueDepth, opts.MaxWait),
		log:       opts.Logger,
		opts:      opts,
		startTime: time.Now(),
	}
	backend, err := SelectBackend(opts.Backend, opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("select backend: %w", err)
	}
	e.backend = backend

	if opts.ModelPath != "" {
		h, err := model.Load(opts.ModelPath, opts.Params, opts.Logger)
		if err != nil {
			return nil, err
		}
		e.handle = h
	}
	return e, nil
}

// Ready reports whether the engine can tokenize and generate. Degrades to
// false instead of returning an error.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle.Ready()
}

// Model returns a view of the current model, or nil when none is loaded.
func (e *Engine) Model() *types.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.handle == nil {
		return nil
	}
	return &types.Model{
		ID:     e.handle.Config.Architecture,
		Name:   e.handle.Config.Architecture,
		Path:   e.handle.Path,
		Family: e.handle.Config.Architecture,
	}
}

// snapshotHandle takes the current handle under the read lock. Callers use
// the returned immutable handle for the remainder of one request so a
// concurrent reload never tears a request across two models.
func (e *Engine) snapshotHandle() *model.Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle
}

// ReloadModel loads path into a fresh handle and swaps it in atomically.
// In-flight requests keep the handle they started with; the old handle is
// closed after the swap. On load failure the current handle stays active.
func (e *Engine) ReloadModel(path string) error {
	h, err := model.Load(path, e.opts.Params, e.log)
	if err != nil {
		return err
	}
	e.mu.Lock()
	old := e.handle
	e.handle = h
	e.mu.Unlock()
	if old != nil {
		// old readers finished before the write lock was granted
		if err := old.Close(); err != nil {
			e.log.Warn().Err(err).Msg("closing replaced model handle")
		}
	}
	e.log.Info().Str("path", path).Msg("model reloaded")
	return nil
}

// Device returns the device of the current model, or "".
func (e *Engine) Device() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.handle == nil {
		return ""
	}
	return e.handle.Device
}

// Close releases the model handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handle
	e.handle = nil
	return h.Close()
}

// maybeCleanup runs the memory-pressure cleanup pass when estimated usage
// crosses the configured threshold: response entries idle five minutes or
// longer are purged, and a token cache above 100MB sheds a quarter of each
// populated sub-map.
func (e *Engine) maybeCleanup() {
	e.mu.RLock()
	modelBytes := e.handle.ModelBytes()
	e.mu.RUnlock()
	cacheBytes := e.tokens.MemoryBytes() + e.responses.MemoryBytes()
	if !e.tracker.OverThreshold(modelBytes, cacheBytes) {
		return
	}
	e.cleanups.Add(1)
	purged := e.responses.PurgeIdle(5 * time.Minute)
	trimmed := 0
	if e.tokens.MemoryBytes() > 100*1024*1024 {
		trimmed = e.tokens.TrimFraction(0.25)
	}
	e.log.Info().
		Int("responses_purged", purged).
		Int("tokens_trimmed", trimmed).
		Msg("memory cleanup pass")
}

// Stats assembles the inference counters, cache stats and a memory
// snapshot.
func (e *Engine) Stats() types.StatsResponse {
	e.mu.RLock()
	modelBytes := e.handle.ModelBytes()
	e.mu.RUnlock()

	rHits, rMisses, rEvict := e.responses.Counters()
	tHits, tMisses, tEvict := e.tokens.Counters()
	cacheBytes := e.tokens.MemoryBytes() + e.responses.MemoryBytes()

	return types.StatsResponse{
		Generations:   e.generations.Load(),
		Cancellations: e.cancellations.Load(),
		Rejections:    e.rejections.Load(),
		Cleanups:      e.cleanups.Load(),
		ResponseCache: types.CacheStats{
			Hits:      rHits,
			Misses:    rMisses,
			Evictions: rEvict,
			Entries:   e.responses.Len(),
		},
		TokenCache: types.CacheStats{
			Hits:       tHits,
			Misses:     tMisses,
			Evictions:  tEvict,
			Entries:    e.tokens.Entries(),
			BudgetUsed: e.tokens.Used(),
		},
		Memory:        e.tracker.Snapshot(modelBytes, cacheBytes),
		Model:         e.Model(),
		Device:        e.Device(),
		UptimeSeconds: int64(time.Since(e.startTime).Seconds()),
	}
}
