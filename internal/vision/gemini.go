package vision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ContentGenerator is satisfied by genai.Client.Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini analyzes images with a Gemini model.
type Gemini struct {
	models ContentGenerator
	model  string
	cfg    InferenceConfig
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini create client: %w", err)
	}
	return client, nil
}

// NewGemini returns a Gemini-backed Model.
func NewGemini(models ContentGenerator, model string, cfg InferenceConfig) *Gemini {
	return &Gemini{models: models, model: model, cfg: cfg}
}

// Name returns the Gemini model name.
func (g *Gemini) Name() string { return g.model }

// Generate sends one inline image with the prompts and asks for JSON.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		},
		MaxOutputTokens:  int32(g.cfg.MaxTokens),
		Temperature:      genai.Ptr(float32(g.cfg.Temperature)),
		TopP:             genai.Ptr(float32(g.cfg.TopP)),
		StopSequences:    g.cfg.StopSequences,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType(), Data: req.Image.Data}},
			{Text: req.Prompt},
		},
	}}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		log.Error().Err(err).Str("model", g.model).Msg("Gemini GenerateContent failed")
		return Response{}, fmt.Errorf("gemini GenerateContent %s: %w", g.model, err)
	}
	if resp == nil || resp.Text() == "" {
		return Response{}, fmt.Errorf("gemini GenerateContent %s: empty response", g.model)
	}

	text := resp.Text()
	r := Response{Text: text}
	if resp.UsageMetadata != nil {
		r.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		r.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if r.InputTokens == 0 && r.OutputTokens == 0 {
		r.InputTokens, r.OutputTokens = estimateTokens(req, text)
	}
	log.Debug().
		Str("model", g.model).
		Int("responseLength", len(text)).
		Msg("Gemini response received")
	return r, nil
}
