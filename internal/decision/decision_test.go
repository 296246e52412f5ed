package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/urlcheck"
)

func bannerTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:          "T-1",
		RequestType: ticket.NewBanner,
		Title:       "Spring Sale",
		Description: "Hero banner for the spring sale",
		TargetURL:   "https://logicart.com/sale",
	}
}

func emailCtx(t *ticket.Ticket) *email.Context {
	return &email.Context{Ticket: t, Now: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)}
}

func record(score, conf float64, appropriate, compliant bool, colors ...string) analysis.Record {
	n := analysis.NewNormalizer(config.DefaultPolicy())
	r := n.Normalize("{}")
	r.VisualQuality.Score = score
	r.OverallCompliance.Confidence = conf
	r.OverallCompliance.Compliant = compliant
	r.ContentAppropriateness.Appropriate = appropriate
	if colors != nil {
		r.ColorsDetected = colors
	}
	return r
}

func interpreter() *Interpreter {
	return NewInterpreter(config.DefaultPolicy())
}

func TestInterpret_BrandAlignedApproves(t *testing.T) {
	tk := bannerTicket()
	d := interpreter().Interpret(Input{
		Record: record(0.6, 0.6, true, false, "#5754ff"),
		Ticket: tk,
		Email:  emailCtx(tk),
	})

	require.NoError(t, d.Validate())
	assert.Equal(t, Approve, d.Decision)
	assert.GreaterOrEqual(t, d.Confidence, 0.8)
	assert.Equal(t, MethodVisual, d.AnalysisMethod)
	require.NotNil(t, d.Email)
	assert.Equal(t, "New Request T-1 - Approved", d.Email.Subject)
}

func TestInterpret_ApproveWithoutEmailContext(t *testing.T) {
	d := interpreter().Interpret(Input{Record: record(0.9, 0.95, true, true), Ticket: bannerTicket()})
	assert.Equal(t, Approve, d.Decision)
	assert.Nil(t, d.Email)
	require.NoError(t, d.Validate())
}

func TestInterpret_Rules(t *testing.T) {
	festival := bannerTicket()
	festival.Title = "Lantern Festival promo"

	tests := []struct {
		name    string
		rec     analysis.Record
		tk      *ticket.Ticket
		prior   []string
		want    Outcome
		minConf float64
		maxConf float64
		reason  string
	}{
		{
			name:    "inappropriate with concerns",
			rec:     func() analysis.Record { r := record(0.9, 0.5, false, true); r.ContentAppropriateness.Concerns = []string{"Competitor logo visible"}; return r }(),
			want:    Reject,
			minConf: 0.7,
			maxConf: 0.7,
			reason:  "Competitor logo visible",
		},
		{
			name:    "inappropriate without concerns",
			rec:     record(0.9, 0.95, false, true),
			want:    Reject,
			minConf: 0.95,
			maxConf: 0.95,
			reason:  ReasonInappropriate,
		},
		{
			name:    "very low score",
			rec:     record(0.2, 0.5, true, false),
			want:    Reject,
			minConf: 0.7,
			maxConf: 0.7,
			reason:  "Image quality below professional standard (score 0.20)",
		},
		{
			name:    "blocker issue with good score",
			rec:     func() analysis.Record { r := record(0.8, 0.9, true, true); r.VisualQuality.Issues = []string{"Visible JPEG compression artifacts"}; return r }(),
			want:    Reject,
			minConf: 0.9,
			maxConf: 0.9,
			reason:  "Visible JPEG compression artifacts",
		},
		{
			name:    "seasonal keyword approves",
			rec:     record(0.55, 0.4, true, false),
			tk:      festival,
			want:    Approve,
			minConf: 0.8,
			maxConf: 0.8,
			reason:  "Brand alignment acceptable",
		},
		{
			name:    "brand prefix match",
			rec:     record(0.7, 0.99, true, false, "#8b5cf6aa"),
			want:    Approve,
			minConf: 0.99,
			maxConf: 0.99,
		},
		{
			name:    "compliant borderline",
			rec:     record(0.45, 0.95, true, true),
			want:    Approve,
			minConf: 0.9,
			maxConf: 0.9,
			reason:  "Meets policy standards",
		},
		{
			name:    "low quality and no alignment",
			rec:     record(0.35, 0.5, true, false),
			want:    NeedsInfo,
			minConf: 0.6,
			maxConf: 0.6,
			reason:  ReasonQualityImprove,
		},
		{
			name:    "no alignment signal",
			rec:     record(0.8, 0.75, true, false, "#00FF00"),
			want:    NeedsInfo,
			minConf: 0.75,
			maxConf: 0.75,
			reason:  ReasonBrandEnhance,
		},
		{
			name:    "prior redirect reason forces needs info",
			rec:     func() analysis.Record { r := record(0.45, 0.5, true, false, "#5754FF"); r.VisualQuality.Issues = []string{"minor crop"}; return r }(),
			prior:   []string{"URL might be an external redirect: https://redirect.logicart.com/x"},
			want:    NeedsInfo,
			minConf: 0.6,
			maxConf: 0.6,
			reason:  "URL might be an external redirect: https://redirect.logicart.com/x",
		},
		{
			name:    "default approve when only weak signals",
			rec:     func() analysis.Record { r := record(0.45, 0.3, true, false, "#5754FF"); r.VisualQuality.Issues = []string{"minor crop"}; return r }(),
			want:    Approve,
			minConf: 0.6,
			maxConf: 0.6,
			reason:  "Acceptable quality",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := tt.tk
			if tk == nil {
				tk = bannerTicket()
			}
			d := interpreter().Interpret(Input{Record: tt.rec, Ticket: tk, PriorReasons: tt.prior, Email: emailCtx(tk)})
			require.NoError(t, d.Validate())
			assert.Equal(t, tt.want, d.Decision)
			assert.GreaterOrEqual(t, d.Confidence, tt.minConf)
			assert.LessOrEqual(t, d.Confidence, tt.maxConf)
			if tt.reason != "" {
				assert.Contains(t, d.Reasons, tt.reason)
			}
			if len(tt.prior) > 0 {
				assert.Equal(t, tt.prior[0], d.Reasons[0])
			}
		})
	}
}

func TestInterpret_ApproveBiasCanBeDisabled(t *testing.T) {
	p := config.DefaultPolicy()
	p.ApproveWithoutSignals = false
	rec := record(0.45, 0.3, true, false, "#5754FF")
	rec.VisualQuality.Issues = []string{"minor crop"}

	d := NewInterpreter(p).Interpret(Input{Record: rec, Ticket: bannerTicket()})
	assert.Equal(t, NeedsInfo, d.Decision)
	assert.Equal(t, []string{ReasonBorderline}, d.Reasons)
	require.NoError(t, d.Validate())
}

func TestInterpret_ReasonsNeverExceedLimit(t *testing.T) {
	rec := record(0.1, 0.5, false, false)
	for i := 0; i < 10; i++ {
		rec.ContentAppropriateness.Concerns = append(rec.ContentAppropriateness.Concerns, "concern "+strings.Repeat("x", i+1))
	}
	prior := []string{"p1", "p2", "p3"}

	d := interpreter().Interpret(Input{Record: rec, Ticket: bannerTicket(), PriorReasons: prior})
	assert.Equal(t, Reject, d.Decision)
	assert.Len(t, d.Reasons, MaxReasons)
	assert.Equal(t, prior, d.Reasons[:3])
	require.NoError(t, d.Validate())
}

func TestRulesAreIndependentlyAddressable(t *testing.T) {
	rules := interpreter().Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"inappropriate-content", "quality-blocker", "brand-aligned",
		"compliant-borderline", "needs-info", "default-approve",
	}, names)

	s := Signals{Appropriate: true, Score: 0.3}
	assert.False(t, rules[0].Match(Input{}, s))
	assert.True(t, rules[1].Match(Input{}, s))
}

func TestURLRejected(t *testing.T) {
	p := config.DefaultPolicy()
	v := urlcheck.New(p.ApprovedDomains, p.RedirectHints)
	tk := bannerTicket()
	tk.TargetURL = "https://bit.ly/xyz"

	d := URLRejected(v.Check(tk.CandidateURLs()), emailCtx(tk))
	require.NoError(t, d.Validate())
	assert.Equal(t, Reject, d.Decision)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, MethodURLCheck, d.AnalysisMethod)
	assert.Contains(t, d.Reasons[0], "Non-approved URL domain")
}

func TestNoImageAndUnknownType(t *testing.T) {
	d := NoImage([]string{"URL might be an external redirect: x"}, nil)
	require.NoError(t, d.Validate())
	assert.Equal(t, NeedsInfo, d.Decision)
	assert.Equal(t, 0.6, d.Confidence)
	assert.Equal(t, []string{"URL might be an external redirect: x", ReasonNoImage}, d.Reasons)

	u := UnknownRequestType("COPY_CHANGE", nil)
	require.NoError(t, u.Validate())
	assert.Equal(t, 0.0, u.Confidence)
	assert.Equal(t, []string{"Unknown request type: COPY_CHANGE", "Manual review required"}, u.Reasons)
	assert.True(t, u.ManualReviewRequired)
}

func TestManualReview(t *testing.T) {
	d := NewManualReview(nil, "Database access error: boom")
	require.NoError(t, d.Validate())
	assert.Equal(t, NeedsInfo, d.Decision)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, []string{ManualReviewReason}, d.Reasons)
	assert.True(t, d.ManualReviewRequired)
	assert.True(t, d.Error)
	assert.Contains(t, d.Email.Body, "Database access error: boom")
}

func TestTrimReasonsAndClamp(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, TrimReasons([]string{"", "a", " ", "a", "b"}))
	assert.Len(t, TrimReasons([]string{"1", "2", "3", "4", "5", "6"}), MaxReasons)

	d := NewApprove(nil, 1.7, MethodVisual, nil)
	assert.Equal(t, 1.0, d.Confidence)
	d = NewApprove(nil, -1, MethodVisual, nil)
	assert.Equal(t, 0.0, d.Confidence)
}

func TestValidate(t *testing.T) {
	bad := Decision{Decision: "MAYBE", Reasons: []string{"", "1", "2", "3", "4", "5"}, Confidence: 2}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown decision", "exceeds limit", "is empty", "outside [0,1]", "requires an email"} {
		assert.Contains(t, err.Error(), want)
	}
}
