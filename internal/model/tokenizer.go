package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

// tokenizerFile mirrors the subset of the HuggingFace tokenizer.json schema
// this engine consumes: the vocabulary and any added special tokens.
type tokenizerFile struct {
	Model struct {
		Type  string         `json:"type"`
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// Tokenizer maps text to token ids and back using a greedy longest-match
// over the vocabulary. Word-initial pieces may be marked with "Ġ" or "▁"
// depending on the source tokenizer.
type Tokenizer struct {
	vocab   map[string]int
	pieces  []string // vocabulary sorted by descending length for greedy match
	inverse map[int]string
	unkID   int
}

// LoadTokenizer reads a tokenizer.json file. A missing file is surfaced as a
// plain *os.PathError so callers can treat absence as non-fatal.
func LoadTokenizer(path string) (*Tokenizer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf tokenizerFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("tokenizer %s: %w", path, err)
	}
	if len(tf.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s: empty vocabulary", path)
	}

	t := &Tokenizer{
		vocab:   make(map[string]int, len(tf.Model.Vocab)+len(tf.AddedTokens)),
		inverse: make(map[int]string, len(tf.Model.Vocab)+len(tf.AddedTokens)),
	}
	for piece, id := range tf.Model.Vocab {
		t.vocab[piece] = id
		t.inverse[id] = piece
	}
	for _, at := range tf.AddedTokens {
		t.vocab[at.Content] = at.ID
		t.inverse[at.ID] = at.Content
	}
	if id, ok := t.vocab["<unk>"]; ok {
		t.unkID = id
	}
	t.pieces = make([]string, 0, len(t.vocab))
	for piece := range t.vocab {
		t.pieces = append(t.pieces, piece)
	}
	sort.Slice(t.pieces, func(i, j int) bool {
		if len(t.pieces[i]) != len(t.pieces[j]) {
			return len(t.pieces[i]) > len(t.pieces[j])
		}
		return t.pieces[i] < t.pieces[j]
	})
	return t, nil
}

// VocabSize returns the number of known pieces.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// Encode tokenizes text. Words after the first are tried with a word-start
// marker first so vocabularies using "Ġ"/"▁" conventions match naturally.
// Unmatched runes fall back to the unknown token id.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	words := strings.Fields(text)
	for wi, word := range words {
		rem := word
		if wi > 0 {
			if matched, rest := t.matchPrefix("Ġ" + word); matched >= 0 {
				ids = append(ids, matched)
				rem = rest
			} else if matched, rest := t.matchPrefix("▁" + word); matched >= 0 {
				ids = append(ids, matched)
				rem = rest
			}
		}
		for len(rem) > 0 {
			matched, rest := t.matchPrefix(rem)
			if matched < 0 {
				// drop one rune and emit <unk>
				_, size := utf8.DecodeRuneInString(rem)
				rem = rem[size:]
				ids = append(ids, t.unkID)
				continue
			}
			ids = append(ids, matched)
			rem = rest
		}
	}
	return ids
}

// matchPrefix finds the longest vocabulary piece prefixing s. Returns the
// token id and the unmatched remainder, or (-1, s) when nothing matches.
func (t *Tokenizer) matchPrefix(s string) (int, string) {
	for _, piece := range t.pieces {
		if len(piece) <= len(s) && strings.HasPrefix(s, piece) {
			return t.vocab[piece], s[len(piece):]
		}
	}
	return -1, s
}

// Decode reassembles text from token ids, translating word-start markers
// back into spaces.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		piece, ok := t.inverse[id]
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(piece, "Ġ"):
			sb.WriteByte(' ')
			sb.WriteString(strings.TrimPrefix(piece, "Ġ"))
		case strings.HasPrefix(piece, "▁"):
			sb.WriteByte(' ')
			sb.WriteString(strings.TrimPrefix(piece, "▁"))
		default:
			if i > 0 && sb.Len() > 0 && needsSpace(piece) {
				sb.WriteByte(' ')
			}
			sb.WriteString(piece)
		}
	}
	return strings.TrimPrefix(sb.String(), " ")
}

func needsSpace(piece string) bool {
	if piece == "" {
		return false
	}
	c := piece[0]
	return c != '.' && c != ',' && c != '!' && c != '?' && c != '\''
}
