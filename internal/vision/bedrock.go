package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
)

// InvokeModelAPI is the subset of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Nova messages-v1 request and response shapes.
type novaRequest struct {
	SchemaVersion   string        `json:"schemaVersion"`
	System          []novaText    `json:"system"`
	Messages        []novaMessage `json:"messages"`
	InferenceConfig novaInference `json:"inferenceConfig"`
}

type novaText struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string        `json:"role"`
	Content []novaContent `json:"content"`
}

type novaContent struct {
	Text  string     `json:"text,omitempty"`
	Image *novaImage `json:"image,omitempty"`
}

type novaImage struct {
	Format string          `json:"format"`
	Source novaImageSource `json:"source"`
}

// novaImageSource carries raw bytes; encoding/json writes []byte as base64.
type novaImageSource struct {
	Bytes []byte `json:"bytes"`
}

type novaInference struct {
	MaxTokens     int      `json:"maxTokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

type novaResponse struct {
	Output struct {
		Message struct {
			Content []novaText `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
	} `json:"usage"`
	StopReason string `json:"stopReason"`
}

// Nova analyzes images with an Amazon Nova model through Bedrock.
type Nova struct {
	client  InvokeModelAPI
	modelID string
	cfg     InferenceConfig
}

// NewNova returns a Bedrock-backed Model.
func NewNova(client InvokeModelAPI, modelID string, cfg InferenceConfig) *Nova {
	return &Nova{client: client, modelID: modelID, cfg: cfg}
}

// Name returns the Bedrock model ID.
func (n *Nova) Name() string { return n.modelID }

// Generate sends one image with the system and user prompts.
func (n *Nova) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(novaRequest{
		SchemaVersion: "messages-v1",
		System:        []novaText{{Text: req.System}},
		Messages: []novaMessage{{
			Role: "user",
			Content: []novaContent{
				{Image: &novaImage{Format: req.Image.Format, Source: novaImageSource{Bytes: req.Image.Data}}},
				{Text: req.Prompt},
			},
		}},
		InferenceConfig: novaInference{
			MaxTokens:     n.cfg.MaxTokens,
			Temperature:   n.cfg.Temperature,
			TopP:          n.cfg.TopP,
			StopSequences: n.cfg.StopSequences,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("bedrock marshal request: %w", err)
	}

	out, err := n.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(n.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		log.Error().Err(err).Str("modelId", n.modelID).Msg("Bedrock InvokeModel failed")
		return Response{}, fmt.Errorf("bedrock InvokeModel %s: %w", n.modelID, err)
	}

	var resp novaResponse
	if err := json.NewDecoder(bytes.NewReader(out.Body)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("bedrock decode response: %w", err)
	}
	var text string
	if len(resp.Output.Message.Content) > 0 {
		text = resp.Output.Message.Content[0].Text
	}

	r := Response{Text: text, InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	if r.InputTokens == 0 && r.OutputTokens == 0 {
		r.InputTokens, r.OutputTokens = estimateTokens(req, text)
	}
	log.Debug().
		Str("modelId", n.modelID).
		Str("stopReason", resp.StopReason).
		Int("responseLength", len(text)).
		Msg("Bedrock response received")
	return r, nil
}
