// Package decision maps ticket evidence to an APPROVE, REJECT or NEEDS_INFO
// outcome. Decisions are only built through the constructors here, which
// enforce the reason and confidence limits.
package decision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/ticket-decision-engine/internal/email"
)

// Outcome is the decision token.
type Outcome string

const (
	Approve   Outcome = "APPROVE"
	Reject    Outcome = "REJECT"
	NeedsInfo Outcome = "NEEDS_INFO"
)

// MaxReasons caps the reasons carried by a decision.
const MaxReasons = 5

// Analysis methods recorded with each decision.
const (
	MethodURLCheck        = "policy_url_check"
	MethodVisual          = "policy_visual"
	MethodVisualFocus     = "policy_visual_focus"
	MethodFallback        = "rule_based_fallback"
	MethodFeatureGuidance = "policy_feature_guidance"
	MethodRequestType     = "policy_request_type"
	MethodManualReview    = "manual_review"
)

// Decision is the engine's output for one ticket.
type Decision struct {
	Decision                  Outcome        `json:"decision"`
	Reasons                   []string       `json:"reasons"`
	Confidence                float64        `json:"confidence"`
	AnalysisMethod            string         `json:"analysis_method"`
	Email                     *email.Message `json:"email,omitempty"`
	Summary                   string         `json:"summary,omitempty"`
	FallbackAnalysis          bool           `json:"fallback_analysis"`
	VisualAnalysisUnavailable bool           `json:"visual_analysis_unavailable,omitempty"`
	FallbackReason            string         `json:"fallback_reason,omitempty"`
	ManualReviewRequired      bool           `json:"manual_review_required,omitempty"`
	Error                     bool           `json:"error,omitempty"`
}

func build(outcome Outcome, reasons []string, confidence float64, method string, msg *email.Message) Decision {
	return Decision{
		Decision:       outcome,
		Reasons:        TrimReasons(reasons),
		Confidence:     clamp01(confidence),
		AnalysisMethod: method,
		Email:          msg,
	}
}

// NewApprove builds an APPROVE decision. The message is optional.
func NewApprove(reasons []string, confidence float64, method string, msg *email.Message) Decision {
	return build(Approve, reasons, confidence, method, msg)
}

// NewReject builds a REJECT decision.
func NewReject(reasons []string, confidence float64, method string, msg email.Message) Decision {
	return build(Reject, reasons, confidence, method, &msg)
}

// NewNeedsInfo builds a NEEDS_INFO decision.
func NewNeedsInfo(reasons []string, confidence float64, method string, msg email.Message) Decision {
	return build(NeedsInfo, reasons, confidence, method, &msg)
}

// ManualReviewReason is the single reason carried by manual review decisions.
const ManualReviewReason = "System error: manual review required"

// NewManualReview builds the decision returned when processing failed and a
// person has to look at the ticket.
func NewManualReview(ec *email.Context, detail string) Decision {
	msg := ec.ManualReview(detail)
	d := build(NeedsInfo, []string{ManualReviewReason}, 0, MethodManualReview, &msg)
	d.Summary = "Manual review due to error: " + detail
	d.ManualReviewRequired = true
	d.Error = true
	return d
}

// TrimReasons drops blank reasons, removes exact duplicates and keeps at
// most MaxReasons in order.
func TrimReasons(reasons []string) []string {
	out := make([]string, 0, MaxReasons)
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
		if len(out) == MaxReasons {
			break
		}
	}
	return out
}

// Validate checks the external contract of a decision.
func (d Decision) Validate() error {
	var errs []error
	switch d.Decision {
	case Approve, Reject, NeedsInfo:
	default:
		errs = append(errs, fmt.Errorf("unknown decision %q", d.Decision))
	}
	if len(d.Reasons) > MaxReasons {
		errs = append(errs, fmt.Errorf("%d reasons exceeds limit of %d", len(d.Reasons), MaxReasons))
	}
	for i, r := range d.Reasons {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, fmt.Errorf("reason %d is empty", i))
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %.3f outside [0,1]", d.Confidence))
	}
	if d.Decision != Approve {
		if d.Email == nil || d.Email.Subject == "" || d.Email.Body == "" {
			errs = append(errs, fmt.Errorf("%s decision requires an email", d.Decision))
		}
	}
	return errors.Join(errs...)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
