package embed

import (
	"fmt"
	"strings"
)

// Chunk is one sliding window of words with its character span in the
// source text.
type Chunk struct {
	ID    string
	Text  string
	Start int // byte offset of the first word
	End   int // byte offset past the last word
}

// Defaults for chunking when unconfigured.
const (
	DefaultChunkSize = 200
	DefaultOverlap   = 50
)

// SplitWords chunks text into sliding windows of chunkSize words with
// overlap shared words between consecutive windows. The step is
// chunkSize - overlap, clamped to a minimum of 1. Character offsets are
// reconstructed from the word positions in the original text.
func SplitWords(text string, chunkSize, overlap int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	type span struct{ start, end int }
	var words []span
	inWord := false
	start := 0
	for i, r := range text {
		if isSpace(r) {
			if inWord {
				words = append(words, span{start, i})
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		words = append(words, span{start, len(text)})
	}
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		first, last := words[i], words[end-1]
		chunks = append(chunks, Chunk{
			ID:    fmt.Sprintf("chunk-%d", len(chunks)),
			Text:  text[first.start:last.end],
			Start: first.start,
			End:   last.end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// WordCount counts whitespace-separated words, matching the chunker's
// notion of a word boundary.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
