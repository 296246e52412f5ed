package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/assets"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/metrics"
)

// Outcome is the reduced result of analyzing a ticket's images. Err is set
// when no image could be analyzed; Record is then the zero value.
type Outcome struct {
	Record   analysis.Record
	Raw      string
	Model    string
	Analyzed int
	Failed   int
	Err      error
}

// Options tune a Service.
type Options struct {
	Concurrency  int
	ModelTimeout time.Duration
	BrandColor   string
}

// Service downloads images, calls the model once per image and combines
// the normalized records.
type Service struct {
	model      Model
	fetcher    *Fetcher
	normalizer *analysis.Normalizer
	opts       Options
}

// NewService builds a Service.
func NewService(m Model, f *Fetcher, n *analysis.Normalizer, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{model: m, fetcher: f, normalizer: n, opts: opts}
}

type imageResult struct {
	record analysis.Record
	raw    string
	err    error
}

// Analyze runs every link through the model. Individual failures are
// tolerated while at least one image succeeds.
func (s *Service) Analyze(ctx context.Context, links []email.AssetLink, policy string) Outcome {
	out := Outcome{Model: s.model.Name()}
	if len(links) == 0 {
		out.Err = ErrNoImages
		return out
	}

	system := assets.RenderVisionSystemPrompt(assets.VisionPromptData{
		PolicyText: policy,
		BrandColor: s.opts.BrandColor,
	})

	results := make([]imageResult, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, link := range links {
		g.Go(func() error {
			results[i] = s.analyzeOne(gctx, link, system)
			return nil
		})
	}
	_ = g.Wait()

	agg := analysis.NewAggregate()
	var raws []string
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		agg.Add(r.record)
		raws = append(raws, r.raw)
	}
	out.Analyzed = agg.Len()
	out.Failed = len(errs)

	if agg.Len() == 0 {
		out.Err = &UnavailableError{Model: s.model.Name(), Errs: errs}
		log.Warn().Err(out.Err).Int("images", len(links)).Msg("Vision analysis failed for every image")
		return out
	}

	out.Record = agg.Record()
	out.Raw = strings.Join(raws, "\n---\n")
	log.Info().
		Str("model", s.model.Name()).
		Int("analyzed", out.Analyzed).
		Int("failed", out.Failed).
		Float64("score", out.Record.VisualQuality.Score).
		Float64("confidence", out.Record.OverallCompliance.Confidence).
		Msg("Vision analysis complete")
	return out
}

func (s *Service) analyzeOne(ctx context.Context, link email.AssetLink, system string) imageResult {
	img, err := s.fetcher.Fetch(ctx, link.Name, link.URL)
	if err != nil {
		log.Warn().Err(err).Str("image", link.Name).Msg("Image download failed")
		return imageResult{err: err}
	}

	callCtx := ctx
	if s.opts.ModelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.model.Generate(callCtx, Request{Image: img, System: system, Prompt: assets.VisionUserPrompt})
	elapsed := time.Since(start)
	if err != nil {
		metrics.ModelCall(s.model.Name(), metrics.ResultError, elapsed, 0, 0)
		log.Warn().Err(err).Str("image", link.Name).Dur("duration", elapsed).Msg("Vision model call failed")
		return imageResult{err: fmt.Errorf("analyze %s: %w", link.Name, err)}
	}
	metrics.ModelCall(s.model.Name(), metrics.ResultSuccess, elapsed, resp.InputTokens, resp.OutputTokens)

	log.Debug().
		Str("image", link.Name).
		Str("model", s.model.Name()).
		Int("inputTokens", resp.InputTokens).
		Int("outputTokens", resp.OutputTokens).
		Float64("estimatedCostUsd", metrics.EstimateCost(resp.InputTokens, resp.OutputTokens)).
		Str("output", resp.Text).
		Dur("duration", elapsed).
		Msg("Vision model output")

	return imageResult{record: s.normalizer.Normalize(resp.Text), raw: resp.Text}
}
