// Package embed turns text into fixed-dimension unit vectors and splits
// documents into overlapping word-window chunks for retrieval.
package embed

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
)

// DefaultDimension is the embedding width when none is configured.
const DefaultDimension = 256

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Embedder produces deterministic, L2-normalized hashed-feature vectors:
// identical input text always yields an identical vector, and any non-empty
// vector has unit norm. No corpus preparation phase is required.
type Embedder struct {
	dimension int
}

// New constructs an embedder; dimension <= 0 uses DefaultDimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension returns the width of produced vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the vector for text. Degenerate input (no tokens) yields
// the zero vector, whose similarity against anything is defined as 0.
func (e *Embedder) Embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return vec
	}
	// unigrams plus adjacent bigrams, signed-hashed into the vector
	for i, tok := range tokens {
		e.accumulate(vec, tok)
		if i+1 < len(tokens) {
			e.accumulate(vec, tok+" "+tokens[i+1])
		}
	}
	normalize(vec)
	return vec
}

// accumulate signed-hashes one feature into vec: one hash picks the bucket,
// a second picks the sign, which keeps colliding features from only ever
// adding up.
func (e *Embedder) accumulate(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if (sum>>63)&1 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

// EmbedBatch embeds texts preserving input order. Work is fanned out across
// a small worker set; ordering is positional, not completion-ordered.
func (e *Embedder) EmbedBatch(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}
	workers := 4
	if len(texts) < workers {
		workers = len(texts)
	}
	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = e.Embed(texts[i])
			}
		}()
	}
	for i := range texts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths or a
// zero vector on either side yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
