package cache

import (
	"container/list"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Kind selects one of the three token-cache sub-maps.
type Kind int

const (
	// PromptTokens caches prompt text -> token ids.
	PromptTokens Kind = iota
	// GeneratedTokens caches context -> generated token ids.
	GeneratedTokens
	// DecodedText caches token ids -> decoded text.
	DecodedText

	numKinds
)

func (k Kind) String() string {
	switch k {
	case PromptTokens:
		return "prompt"
	case GeneratedTokens:
		return "generated"
	case DecodedText:
		return "decoded"
	default:
		return "unknown"
	}
}

// tokenEntry is one cached item; cost is its token count charged against the
// shared budget.
type tokenEntry struct {
	kind   Kind
	key    string
	tokens []int
	text   string
	cost   int64
}

type subCache struct {
	ll    *list.List               // front = most recently used
	items map[string]*list.Element // key -> element holding *tokenEntry
}

// TokenCache is three independent LRU maps sharing one global token budget.
// An insert that would exceed the budget evicts least-recently-used entries
// round-robin across the sub-maps; if nothing is evictable the insert
// proceeds over budget rather than blocking the caller.
type TokenCache struct {
	mu     sync.Mutex
	budget int64
	used   int64
	subs   [numKinds]subCache
	rr     int // next sub-map to try evicting from

	hits      uint64
	misses    uint64
	evictions uint64

	log zerolog.Logger
}

// DefaultTokenBudget is the global token budget applied when none is
// configured.
const DefaultTokenBudget = 1_000_000

// NewTokenCache constructs a token cache with the given budget; budget <= 0
// applies DefaultTokenBudget.
func NewTokenCache(budget int64, log zerolog.Logger) *TokenCache {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	c := &TokenCache{budget: budget, log: log}
	for i := range c.subs {
		c.subs[i] = subCache{ll: list.New(), items: make(map[string]*list.Element)}
	}
	return c
}

// TokensKey builds the stable string key for a token-id sequence, used by
// the decoded-text sub-map.
func TokensKey(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}

// GetTokens looks up a token-id entry in the given sub-map.
func (c *TokenCache) GetTokens(kind Kind, key string) ([]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(kind, key)
	if !ok {
		return nil, false
	}
	return e.tokens, true
}

// GetText looks up a decoded-text entry.
func (c *TokenCache) GetText(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(DecodedText, key)
	if !ok {
		return "", false
	}
	return e.text, true
}

func (c *TokenCache) lookup(kind Kind, key string) (*tokenEntry, bool) {
	sub := &c.subs[kind]
	el, ok := sub.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	sub.ll.MoveToFront(el)
	c.hits++
	return el.Value.(*tokenEntry), true
}

// PutTokens inserts a token-id entry; cost is len(tokens).
func (c *TokenCache) PutTokens(kind Kind, key string, tokens []int) {
	c.put(&tokenEntry{kind: kind, key: key, tokens: tokens, cost: int64(len(tokens))})
}

// PutText inserts a decoded-text entry charged at the id count of its key.
func (c *TokenCache) PutText(key, text string, tokenCount int) {
	c.put(&tokenEntry{kind: DecodedText, key: key, text: text, cost: int64(tokenCount)})
}

func (c *TokenCache) put(e *tokenEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &c.subs[e.kind]
	if el, ok := sub.items[e.key]; ok {
		// drop the old entry first so replacement frees budget the same
		// way a fresh insert does
		old := el.Value.(*tokenEntry)
		sub.ll.Remove(el)
		delete(sub.items, e.key)
		c.used -= old.cost
	}
	c.evictFor(e.cost)
	el := sub.ll.PushFront(e)
	sub.items[e.key] = el
	c.used += e.cost
}

// evictFor frees budget for an insert of the given cost, cycling the
// sub-maps round-robin and dropping each one's LRU tail. Caller holds mu.
func (c *TokenCache) evictFor(cost int64) {
	for c.used+cost > c.budget {
		evicted := false
		for i := 0; i < int(numKinds); i++ {
			sub := &c.subs[c.rr]
			c.rr = (c.rr + 1) % int(numKinds)
			tail := sub.ll.Back()
			if tail == nil {
				continue
			}
			e := sub.ll.Remove(tail).(*tokenEntry)
			delete(sub.items, e.key)
			c.used -= e.cost
			c.evictions++
			evicted = true
			break
		}
		if !evicted {
			// nothing evictable: proceed over budget rather than block
			c.log.Warn().
				Int64("used", c.used).
				Int64("cost", cost).
				Int64("budget", c.budget).
				Msg("token cache insert over budget, nothing evictable")
			return
		}
	}
}

// TrimFraction evicts roughly the given fraction of entries from every
// sub-map that holds content. Used by the memory-pressure cleanup pass.
func (c *TokenCache) TrimFraction(f float64) int {
	if f <= 0 {
		return 0
	}
	if f > 1 {
		f = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for i := range c.subs {
		sub := &c.subs[i]
		n := int(float64(sub.ll.Len())*f + 0.5)
		for j := 0; j < n; j++ {
			tail := sub.ll.Back()
			if tail == nil {
				break
			}
			e := sub.ll.Remove(tail).(*tokenEntry)
			delete(sub.items, e.key)
			c.used -= e.cost
			c.evictions++
			removed++
		}
	}
	return removed
}

// Used returns the token count currently charged against the budget.
func (c *TokenCache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Entries returns the total entry count across sub-maps.
func (c *TokenCache) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.subs {
		n += c.subs[i].ll.Len()
	}
	return n
}

// MemoryBytes is a coarse estimate of cache memory: ids are stored as ints
// plus map/list overhead per token.
func (c *TokenCache) MemoryBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.used) * 16
}

// Counters returns (hits, misses, evictions).
func (c *TokenCache) Counters() (uint64, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
