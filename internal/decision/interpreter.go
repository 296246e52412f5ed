package decision

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/urlcheck"
)

// Thresholds applied to the normalized quality score.
const (
	RejectScoreMax     = 0.3
	BorderlineScoreMin = 0.4
	ApproveScoreMin    = 0.5

	URLRejectConfidence = 0.9
	NoImageConfidence   = 0.6
)

// Fixed reason texts.
const (
	ReasonInappropriate  = "Inappropriate or unprofessional content detected"
	ReasonQualityImprove = "Image quality may need improvement"
	ReasonBrandEnhance   = "Brand alignment could be enhanced"
	ReasonNoImage        = "No accessible banner image to analyze"
	ReasonBorderline     = "Borderline analysis requires manual confirmation"
)

// Input is everything the interpreter considers for one banner.
type Input struct {
	Record       analysis.Record
	Ticket       *ticket.Ticket
	PriorReasons []string
	// Email, when set, is used to attach a message to approvals as well.
	Email *email.Context
}

// Signals are derived once per Input and shared by every rule.
type Signals struct {
	Appropriate    bool
	Score          float64
	Issues         []string
	Concerns       []string
	Confidence     float64
	Compliant      bool
	BrandMatch     bool
	Seasonal       bool
	QualityBlocked bool
}

// Aligned reports whether any brand alignment signal is present.
func (s Signals) Aligned() bool {
	return s.BrandMatch || s.Seasonal || s.Compliant
}

// Rule is one entry of the ordered decision table. The first rule whose
// Match returns true builds the decision.
type Rule struct {
	Name  string
	Match func(in Input, s Signals) bool
	Build func(in Input, s Signals) Decision
}

// Interpreter applies the visual policy rule table to a normalized record.
type Interpreter struct {
	brandColors     []string
	brandPrefixes   []string
	seasonal        []string
	qualityBlockers []string
	approveDefault  bool
	rules           []Rule
}

// NewInterpreter builds an Interpreter for the given policy.
func NewInterpreter(p config.Policy) *Interpreter {
	i := &Interpreter{
		brandColors:     upperAll(p.BrandColors),
		brandPrefixes:   upperAll(p.BrandPrefixes),
		seasonal:        lowerAll(p.SeasonalKeywords),
		qualityBlockers: lowerAll(p.QualityBlockers),
		approveDefault:  p.ApproveWithoutSignals,
	}
	i.rules = i.buildRules()
	return i
}

// Rules returns the ordered rule table.
func (i *Interpreter) Rules() []Rule {
	return i.rules
}

// Interpret returns the decision of the first matching rule.
func (i *Interpreter) Interpret(in Input) Decision {
	s := i.Signals(in)
	r := i.match(in, s)
	d := r.Build(in, s)
	log.Debug().
		Str("rule", r.Name).
		Str("decision", string(d.Decision)).
		Float64("confidence", d.Confidence).
		Float64("score", s.Score).
		Bool("brandMatch", s.BrandMatch).
		Bool("compliant", s.Compliant).
		Msg("Visual policy rule matched")
	return d
}

// match returns the first rule whose predicate holds. The last rule is the
// catch-all and is not tested.
func (i *Interpreter) match(in Input, s Signals) Rule {
	last := len(i.rules) - 1
	for _, r := range i.rules[:last] {
		if r.Match(in, s) {
			return r
		}
	}
	return i.rules[last]
}

// Signals derives rule inputs from a record and ticket.
func (i *Interpreter) Signals(in Input) Signals {
	r := in.Record
	s := Signals{
		Appropriate: r.ContentAppropriateness.Appropriate,
		Score:       r.VisualQuality.Score,
		Issues:      r.Issues(),
		Concerns:    r.ContentAppropriateness.Concerns,
		Confidence:  r.OverallCompliance.Confidence,
		Compliant:   r.OverallCompliance.Compliant,
	}
	for _, c := range r.ColorsDetected {
		if i.isBrandColor(c) {
			s.BrandMatch = true
			break
		}
	}
	if in.Ticket != nil {
		text := strings.ToLower(in.Ticket.Title + " " + in.Ticket.Description)
		for _, kw := range i.seasonal {
			if kw != "" && strings.Contains(text, kw) {
				s.Seasonal = true
				break
			}
		}
	}
	for _, issue := range s.Issues {
		if i.isQualityBlocker(issue) {
			s.QualityBlocked = true
			break
		}
	}
	return s
}

func (i *Interpreter) isBrandColor(c string) bool {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return false
	}
	for _, bc := range i.brandColors {
		if c == bc {
			return true
		}
	}
	for _, p := range i.brandPrefixes {
		if p != "" && strings.Contains(c, p) {
			return true
		}
	}
	return false
}

func (i *Interpreter) isQualityBlocker(issue string) bool {
	issue = strings.ToLower(issue)
	for _, kw := range i.qualityBlockers {
		if kw != "" && strings.Contains(issue, kw) {
			return true
		}
	}
	return false
}

func (i *Interpreter) buildRules() []Rule {
	return []Rule{
		{
			Name:  "inappropriate-content",
			Match: func(_ Input, s Signals) bool { return !s.Appropriate },
			Build: func(in Input, s Signals) Decision {
				reasons := withPrior(in.PriorReasons, s.Concerns...)
				if len(s.Concerns) == 0 {
					reasons = withPrior(in.PriorReasons, ReasonInappropriate)
				}
				reasons = TrimReasons(reasons)
				return NewReject(reasons, math.Max(0.7, s.Confidence), MethodVisual, in.Email.BannerRejected(reasons))
			},
		},
		{
			Name:  "quality-blocker",
			Match: func(_ Input, s Signals) bool { return s.Score <= RejectScoreMax || s.QualityBlocked },
			Build: func(in Input, s Signals) Decision {
				reasons := withPrior(in.PriorReasons, s.Issues...)
				if len(s.Issues) == 0 {
					reasons = append(reasons, fmt.Sprintf("Image quality below professional standard (score %.2f)", s.Score))
				}
				reasons = TrimReasons(reasons)
				return NewReject(reasons, math.Max(0.7, s.Confidence), MethodVisual, in.Email.BannerRejected(reasons))
			},
		},
		{
			Name:  "brand-aligned",
			Match: func(_ Input, s Signals) bool { return s.Score >= ApproveScoreMin && s.Aligned() },
			Build: func(in Input, s Signals) Decision {
				reasons := withPrior(in.PriorReasons, "Professional image quality", "Appropriate content", "Brand alignment acceptable")
				return approve(in, reasons, math.Min(1, math.Max(0.8, s.Confidence)))
			},
		},
		{
			Name: "compliant-borderline",
			Match: func(_ Input, s Signals) bool {
				return s.Score >= BorderlineScoreMin && s.Compliant && len(s.Issues) == 0
			},
			Build: func(in Input, s Signals) Decision {
				reasons := withPrior(in.PriorReasons, "Meets policy standards", "No significant issues detected")
				return approve(in, reasons, math.Min(0.9, math.Max(0.7, s.Confidence)))
			},
		},
		{
			Name: "needs-info",
			Match: func(in Input, s Signals) bool {
				return len(TrimReasons(in.PriorReasons)) > 0 || len(specificNeeds(s)) > 0
			},
			Build: func(in Input, s Signals) Decision {
				reasons := TrimReasons(withPrior(in.PriorReasons, specificNeeds(s)...))
				return NewNeedsInfo(reasons, math.Max(0.6, s.Confidence), MethodVisual, in.Email.BannerNeedsInfo(reasons))
			},
		},
		{
			Name:  "default-approve",
			Match: func(Input, Signals) bool { return true },
			Build: func(in Input, s Signals) Decision {
				conf := math.Max(0.6, s.Confidence)
				if !i.approveDefault {
					reasons := []string{ReasonBorderline}
					return NewNeedsInfo(reasons, conf, MethodVisual, in.Email.BannerNeedsInfo(reasons))
				}
				return approve(in, []string{"Acceptable quality", "No policy violations detected"}, conf)
			},
		},
	}
}

// specificNeeds lists the actionable NEEDS_INFO reasons for the signals.
func specificNeeds(s Signals) []string {
	var out []string
	if s.Score < BorderlineScoreMin {
		out = append(out, ReasonQualityImprove)
	}
	if !s.Aligned() {
		out = append(out, ReasonBrandEnhance)
	}
	return out
}

func approve(in Input, reasons []string, confidence float64) Decision {
	var msg *email.Message
	if in.Email != nil {
		m := in.Email.BannerApproved(reasons)
		msg = &m
	}
	return NewApprove(reasons, confidence, MethodVisual, msg)
}

// URLRejected builds the terminal decision for non-approved URL domains.
func URLRejected(f urlcheck.Findings, ec *email.Context) Decision {
	reasons := TrimReasons(f.Reject)
	return NewReject(reasons, URLRejectConfidence, MethodURLCheck, ec.BannerRejected(reasons))
}

// NoImage builds the decision for a banner with no retrievable image.
func NoImage(prior []string, ec *email.Context) Decision {
	reasons := TrimReasons(withPrior(prior, ReasonNoImage))
	return NewNeedsInfo(reasons, NoImageConfidence, MethodVisualFocus, ec.BannerNeedsInfo(reasons))
}

// UnknownRequestType builds the decision for tickets of an unrecognized type.
func UnknownRequestType(rt ticket.RequestType, ec *email.Context) Decision {
	detail := fmt.Sprintf("Unknown request type: %s", rt)
	msg := ec.ManualReview(detail)
	d := NewNeedsInfo([]string{detail, "Manual review required"}, 0, MethodRequestType, msg)
	d.ManualReviewRequired = true
	return d
}

func withPrior(prior []string, reasons ...string) []string {
	out := make([]string, 0, len(prior)+len(reasons))
	out = append(out, prior...)
	return append(out, reasons...)
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
