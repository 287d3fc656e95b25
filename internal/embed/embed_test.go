package embed

import (
	"math"
	"strings"
	"testing"
)

func TestEmbedDeterministic(t *testing.T) {
	e := New(128)
	a := e.Embed("the quick brown fox jumps over the lazy dog")
	b := e.Embed("the quick brown fox jumps over the lazy dog")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbedUnitNorm(t *testing.T) {
	e := New(64)
	v := e.Embed("memory mapped model files are fast")
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Fatalf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestEmbedEmptyInputIsZero(t *testing.T) {
	e := New(32)
	v := e.Embed("   \t\n ")
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
	if Cosine(v, e.Embed("anything at all")) != 0 {
		t.Fatal("zero-vector similarity must be 0")
	}
}

func TestCosine(t *testing.T) {
	e := New(64)
	v := e.Embed("retrieval augmented generation")
	if s := Cosine(v, v); math.Abs(s-1.0) > 1e-9 {
		t.Fatalf("cosine(v,v) = %v", s)
	}
	if s := Cosine(v, make([]float32, 64)); s != 0 {
		t.Fatalf("cosine with zero vector = %v", s)
	}
	if s := Cosine(v, make([]float32, 8)); s != 0 {
		t.Fatalf("cosine with mismatched lengths = %v", s)
	}
}

func TestRelatedTextsScoreHigher(t *testing.T) {
	e := New(256)
	q := e.Embed("loading a gguf model from disk")
	related := e.Embed("the gguf model is loaded from disk with mmap")
	unrelated := e.Embed("pizza recipes with extra cheese and basil")
	if Cosine(q, related) <= Cosine(q, unrelated) {
		t.Fatalf("related=%v unrelated=%v", Cosine(q, related), Cosine(q, unrelated))
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	e := New(64)
	texts := []string{"alpha beta", "gamma delta", "epsilon zeta", "eta theta", "iota kappa"}
	got := e.EmbedBatch(texts)
	if len(got) != len(texts) {
		t.Fatalf("len = %d", len(got))
	}
	for i, text := range texts {
		want := e.Embed(text)
		for j := range want {
			if got[i][j] != want[j] {
				t.Fatalf("batch[%d] differs from sequential embed", i)
			}
		}
	}
}

func TestSplitWordsWindows(t *testing.T) {
	text := "one two three four five six seven eight nine ten eleven"
	chunks := SplitWords(text, 5, 2)
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	for i, ch := range chunks {
		if n := WordCount(ch.Text); n > 5 {
			t.Fatalf("chunk %d has %d words", i, n)
		}
		if ch.Text != text[ch.Start:ch.End] {
			t.Fatalf("chunk %d span mismatch: %q vs %q", i, ch.Text, text[ch.Start:ch.End])
		}
	}
	// consecutive chunks share overlap words
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		if len(prev) == 5 && (prev[len(prev)-2] != cur[0] || prev[len(prev)-1] != cur[1]) {
			t.Fatalf("chunks %d/%d do not overlap: %v | %v", i-1, i, prev, cur)
		}
	}
}

func TestSplitWordsStepMinimumOne(t *testing.T) {
	chunks := SplitWords("a b c d", 1, 0)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 single-word chunks, got %d", len(chunks))
	}
}

func TestSplitWordsEmpty(t *testing.T) {
	if chunks := SplitWords("", 5, 2); chunks != nil {
		t.Fatalf("expected nil for empty text, got %v", chunks)
	}
}
