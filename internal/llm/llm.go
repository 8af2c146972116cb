package llm

import (
	"context"
	"errors"
	"strings"
)

// Generator produces text from a single natural-language prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrNoText is returned when a provider answers without usable text.
	ErrNoText = errors.New("no generated text in response")
	// ErrNotConfigured is returned by PlaceholderGenerator.
	ErrNotConfigured = errors.New("text generation provider not configured")
)

// PlaceholderGenerator stands in when no provider key is configured in dev.
// Every call fails, so dispatch records generation failures.
type PlaceholderGenerator struct{}

func (PlaceholderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", ErrNotConfigured
}

// Usable trims generated text and reports whether anything is left.
func Usable(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}
