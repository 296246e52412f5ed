package decision

import (
	"fmt"
	"strings"

	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/urlcheck"
)

// Fallback reason texts.
const (
	ReasonVisionUnavailable = "Visual analysis unavailable — requires manual review"
	ReasonMisleadingClaim   = "Possible misleading claim detected in description/copy (requires manual verification)"
	ReasonWatermark         = "Possible watermark/stock photo concern (requires manual verification)"
	ReasonCompetitor        = "Possible competitor branding mentioned in description (visual verification required)"
	ReasonFeatureSpec       = "Requires user stories, visual mockups (Figma), technical specs, and success metrics"

	FallbackNeedsInfoConfidence = 0.6
	FeatureConfidence           = 1.0
)

// Fallback decides tickets from text and URLs alone. It is used when the
// vision model cannot be reached and never approves a banner.
type Fallback struct {
	validator   *urlcheck.Validator
	claims      []string
	watermarks  []string
	competitors []string
}

// NewFallback builds the fallback engine.
func NewFallback(v *urlcheck.Validator, p config.Policy) *Fallback {
	return &Fallback{
		validator:   v,
		claims:      lowerAll(p.SuspiciousClaims),
		watermarks:  lowerAll(p.WatermarkTerms),
		competitors: lowerAll(p.Competitors),
	}
}

// Banner decides a banner without visual analysis. cause, when non-empty,
// names the failure that forced the fallback.
func (f *Fallback) Banner(t *ticket.Ticket, ec *email.Context, cause string) Decision {
	var urls []string
	if t != nil {
		urls = t.CandidateURLs()
	}
	findings := f.validator.Check(urls)

	var d Decision
	if findings.Rejected() {
		reasons := TrimReasons(findings.All())
		d = NewReject(reasons, URLRejectConfidence, MethodFallback, ec.FallbackBanner(email.FallbackRejected, reasons))
	} else {
		reasons := append(findings.NeedsInfo, f.textFindings(t)...)
		if len(TrimReasons(reasons)) == 0 {
			reasons = []string{ReasonVisionUnavailable}
		}
		reasons = TrimReasons(reasons)
		d = NewNeedsInfo(reasons, FallbackNeedsInfoConfidence, MethodFallback, ec.FallbackBanner(email.FallbackNeedsInfo, reasons))
	}
	d.FallbackAnalysis = true
	d.VisualAnalysisUnavailable = true
	if cause != "" {
		d.FallbackReason = fmt.Sprintf("Vision temporarily unavailable: %s", cause)
	}
	return d
}

// textFindings scans free-text ticket fields for heuristic red flags.
func (f *Fallback) textFindings(t *ticket.Ticket) []string {
	if t == nil {
		return nil
	}
	text := strings.ToLower(strings.Join(t.TextFields(), " "))
	var out []string
	if containsAny(text, f.claims) {
		out = append(out, ReasonMisleadingClaim)
	}
	if containsAny(text, f.watermarks) {
		out = append(out, ReasonWatermark)
	}
	if containsAny(text, f.competitors) {
		out = append(out, ReasonCompetitor)
	}
	return out
}

// Feature returns the guidance decision for feature requests. It is the
// normal path for features, not only a fallback.
func (f *Fallback) Feature(ec *email.Context) Decision {
	return NewNeedsInfo([]string{ReasonFeatureSpec}, FeatureConfidence, MethodFeatureGuidance, ec.FeatureGuidance())
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
