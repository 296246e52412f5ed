package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/jsonutil"
)

// Normalizer converts raw model text into a Record. It never fails: text
// without a usable JSON object produces a fallback record built from
// keyword hints.
type Normalizer struct {
	colorHints    []string
	fallbackColor string
	logoHints     []string
	brandElement  string
}

// NewNormalizer builds a Normalizer from the policy's fallback hints.
func NewNormalizer(p config.Policy) *Normalizer {
	return &Normalizer{
		colorHints:    lowerAll(p.FallbackColorHints),
		fallbackColor: p.FallbackColor,
		logoHints:     lowerAll(p.LogoHints),
		brandElement:  p.FallbackBrandElement,
	}
}

// Normalize parses raw and applies field-level defaults.
func (n *Normalizer) Normalize(raw string) Record {
	fields, err := jsonutil.ParseJSON[map[string]any](raw)
	if err != nil {
		log.Warn().Err(err).Int("rawLength", len(raw)).Msg("Model output not parseable, using fallback record")
		return n.Fallback(raw)
	}

	rec := emptyRecord()
	rec.Raw = raw
	rec.ColorsDetected = stringList(fields["colors_detected"])
	rec.LogoPresent = truthy(fields["logo_present"], false)
	rec.BrandElements = stringList(fields["brand_elements"])
	rec.TextContent = stringList(fields["text_content"])

	vq := object(fields["visual_quality"])
	rec.VisualQuality.Score = score(vq["score"], DefaultScore)
	rec.VisualQuality.Issues = stringList(vq["issues"])

	acc := object(fields["accessibility"])
	rec.Accessibility.ContrastAdequate = truthy(acc["contrast_adequate"], false)
	rec.Accessibility.TextReadable = truthy(acc["text_readable"], false)

	ca := object(fields["content_appropriateness"])
	rec.ContentAppropriateness.Appropriate = truthy(ca["appropriate"], true)
	rec.ContentAppropriateness.Concerns = stringList(ca["concerns"])

	oc := object(fields["overall_compliance"])
	rec.OverallCompliance.Compliant = truthy(oc["compliant"], false)
	rec.OverallCompliance.Confidence = score(oc["confidence"], DefaultConfidence)
	if s, ok := oc["summary"].(string); ok {
		rec.OverallCompliance.Summary = s
	}
	return rec
}

// Fallback builds the record used when raw text holds no usable JSON.
func (n *Normalizer) Fallback(raw string) Record {
	rec := emptyRecord()
	rec.Raw = raw
	rec.ParseFailed = true

	lower := strings.ToLower(raw)
	if containsAny(lower, n.colorHints) && n.fallbackColor != "" {
		rec.ColorsDetected = []string{n.fallbackColor}
	}
	if containsAny(lower, n.logoHints) {
		rec.LogoPresent = true
		if n.brandElement != "" {
			rec.BrandElements = []string{n.brandElement}
		}
	}
	rec.VisualQuality = Quality{Score: FallbackScore, Issues: []string{ParseFailureIssue}}
	rec.OverallCompliance = Compliance{
		Compliant:  false,
		Confidence: FallbackConfidence,
		Summary:    FallbackSummary,
	}
	return rec
}

func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// stringList keeps non-empty scalar entries of a list as strings. A lone
// scalar is treated as a one-element list.
func stringList(v any) []string {
	out := []string{}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case nil:
		return out
	default:
		items = []any{t}
	}
	for _, item := range items {
		var s string
		switch x := item.(type) {
		case string:
			s = strings.TrimSpace(x)
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(x)
		default:
			continue
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truthy coerces common model spellings of booleans.
func truthy(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		case "false", "no", "n", "0":
			return false
		}
	}
	return def
}

// score coerces a number (or numeric string, optionally a percentage) into [0,1].
func score(v any, def float64) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		pct := strings.HasSuffix(s, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return def
		}
		f = parsed
		if pct {
			f /= 100
		}
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return clamp01(f)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// String renders a short summary for logs.
func (r Record) String() string {
	return fmt.Sprintf("score=%.2f appropriate=%t compliant=%t confidence=%.2f colors=%v",
		r.VisualQuality.Score, r.ContentAppropriateness.Appropriate,
		r.OverallCompliance.Compliant, r.OverallCompliance.Confidence, r.ColorsDetected)
}
