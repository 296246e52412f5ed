// Package vision runs banner images through a multimodal model and reduces
// the answers to one normalized analysis record.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/ticket-decision-engine/internal/config"
)

// Request is one image analysis call.
type Request struct {
	Image  Image
	System string
	Prompt string
}

// Response is the raw model answer and its token usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Model is a multimodal model that answers one image at a time.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// InferenceConfig controls generation.
type InferenceConfig struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	StopSequences []string
}

// DefaultStopSequences end generation after the JSON payload.
var DefaultStopSequences = []string{"</json>", "---END---"}

// InferenceFromConfig builds the inference settings from runtime config.
func InferenceFromConfig(cfg *config.Config) InferenceConfig {
	return InferenceConfig{
		MaxTokens:     cfg.MaxOutputTokens,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		StopSequences: DefaultStopSequences,
	}
}

// ErrNoImages is returned when there is nothing to analyze.
var ErrNoImages = errors.New("no images to analyze")

// UnavailableError reports that no image could be analyzed.
type UnavailableError struct {
	Model string
	Errs  []error
}

func (e *UnavailableError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("vision model unavailable (%s): %s", e.Model, strings.Join(msgs, "; "))
}

func (e *UnavailableError) Unwrap() []error { return e.Errs }

// VisionUnavailable marks the error for failure classification.
func (e *UnavailableError) VisionUnavailable() bool { return true }

// estimateTokens approximates usage when a provider does not report it.
func estimateTokens(req Request, text string) (int, int) {
	return len(req.System)/4 + len(req.Prompt)/4 + len(req.Image.Data)/1000, len(text) / 4
}
