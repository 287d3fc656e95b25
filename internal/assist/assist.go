// Package assist layers task-level helpers over the inference engine:
// summarization, tag extraction and categorization with prompt templates
// and output normalization.
package assist

import (
	"context"
	"fmt"
	"strings"

	"inferd/pkg/types"
)

// Generator is satisfied by the inference engine.
type Generator interface {
	Generate(ctx context.Context, prompt string, settings types.GenerationSettings) (*types.GenerateResponse, error)
}

// MaxTags caps the number of tags returned by Tags.
const MaxTags = 5

// emptyInputError rejects a task with no input text.
type emptyInputError struct{ task string }

func (e emptyInputError) Error() string { return e.task + ": input text is required" }

// IsEmptyInput reports whether err is an empty-input rejection.
func IsEmptyInput(err error) bool {
	_, ok := err.(emptyInputError)
	return ok
}

const (
	summarizeTemplate = `Summarize the following text in two or three sentences. Keep only the essential points.

Text:
%s

Summary:`

	tagsTemplate = `List up to %d short topical tags for the following text. Respond with the tags only, separated by commas.

Text:
%s

Tags:`

	categorizeTemplate = `Classify the following text into exactly one of these categories: %s. Respond with the category name only.

Text:
%s

Category:`
)

// Assistant composes the engine into one-shot task helpers.
type Assistant struct {
	gen      Generator
	settings types.GenerationSettings
}

// New builds an Assistant. settings applies to every task call; zero
// values take engine defaults.
func New(gen Generator, settings types.GenerationSettings) *Assistant {
	return &Assistant{gen: gen, settings: settings}
}

// Summarize produces a short summary of text.
func (a *Assistant) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", emptyInputError{task: "summarize"}
	}
	resp, err := a.gen.Generate(ctx, fmt.Sprintf(summarizeTemplate, text), a.settings)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Tags extracts up to MaxTags lowercase tags from text.
func (a *Assistant) Tags(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInputError{task: "tags"}
	}
	resp, err := a.gen.Generate(ctx, fmt.Sprintf(tagsTemplate, MaxTags, text), a.settings)
	if err != nil {
		return nil, err
	}
	return parseTags(resp.Text), nil
}

// Categorize picks one of categories for text. The model response is
// matched case-insensitively against the allowed set; an answer outside
// the set falls back to the first category.
func (a *Assistant) Categorize(ctx context.Context, text string, categories []string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", emptyInputError{task: "categorize"}
	}
	if len(categories) == 0 {
		categories = []string{"general"}
	}
	prompt := fmt.Sprintf(categorizeTemplate, strings.Join(categories, ", "), text)
	resp, err := a.gen.Generate(ctx, prompt, a.settings)
	if err != nil {
		return "", err
	}
	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	for _, c := range categories {
		if strings.Contains(answer, strings.ToLower(c)) {
			return c, nil
		}
	}
	return categories[0], nil
}

// parseTags splits model output on commas and newlines, trims list
// punctuation, lowercases and deduplicates.
func parseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	seen := make(map[string]struct{}, len(fields))
	tags := make([]string, 0, MaxTags)
	for _, f := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(f), "-*• .\"'"))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}
