package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/ticket-decision-engine/internal/config"
)

func newNormalizer() *Normalizer {
	return NewNormalizer(config.DefaultPolicy())
}

func assertWellFormed(t *testing.T, r Record) {
	t.Helper()
	assert.NotNil(t, r.ColorsDetected)
	assert.NotNil(t, r.BrandElements)
	assert.NotNil(t, r.TextContent)
	assert.NotNil(t, r.VisualQuality.Issues)
	assert.NotNil(t, r.ContentAppropriateness.Concerns)
	assert.GreaterOrEqual(t, r.VisualQuality.Score, 0.0)
	assert.LessOrEqual(t, r.VisualQuality.Score, 1.0)
	assert.GreaterOrEqual(t, r.OverallCompliance.Confidence, 0.0)
	assert.LessOrEqual(t, r.OverallCompliance.Confidence, 1.0)
}

func TestNormalize_FullObject(t *testing.T) {
	raw := "Here is the analysis:\n```json\n" + `{
  "colors_detected": ["#5754FF", "#FFFFFF"],
  "logo_present": true,
  "brand_elements": ["LogicCart wordmark"],
  "text_content": ["Spring Sale"],
  "visual_quality": {"score": 0.82, "issues": []},
  "accessibility": {"contrast_adequate": true, "text_readable": "yes"},
  "content_appropriateness": {"appropriate": true, "concerns": []},
  "overall_compliance": {"compliant": true, "confidence": 0.9, "summary": "Looks good {ok}"}
}` + "\n```\nLet me know if you need more."

	r := newNormalizer().Normalize(raw)
	assertWellFormed(t, r)
	assert.False(t, r.ParseFailed)
	assert.Equal(t, []string{"#5754FF", "#FFFFFF"}, r.ColorsDetected)
	assert.True(t, r.LogoPresent)
	assert.Equal(t, 0.82, r.VisualQuality.Score)
	assert.True(t, r.Accessibility.TextReadable)
	assert.True(t, r.OverallCompliance.Compliant)
	assert.Equal(t, "Looks good {ok}", r.OverallCompliance.Summary)
}

func TestNormalize_DefaultsAndCoercion(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, r Record)
	}{
		{
			name: "empty object",
			raw:  `{}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, DefaultScore, r.VisualQuality.Score)
				assert.True(t, r.ContentAppropriateness.Appropriate)
				assert.False(t, r.OverallCompliance.Compliant)
				assert.Equal(t, DefaultConfidence, r.OverallCompliance.Confidence)
			},
		},
		{
			name: "out of range scores are clamped",
			raw:  `{"visual_quality":{"score":7},"overall_compliance":{"confidence":-2}}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, 1.0, r.VisualQuality.Score)
				assert.Equal(t, 0.0, r.OverallCompliance.Confidence)
			},
		},
		{
			name: "non-numeric score falls back to default",
			raw:  `{"visual_quality":{"score":"excellent"}}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, DefaultScore, r.VisualQuality.Score)
			},
		},
		{
			name: "percentage string",
			raw:  `{"visual_quality":{"score":"65%"}}`,
			check: func(t *testing.T, r Record) {
				assert.InDelta(t, 0.65, r.VisualQuality.Score, 1e-9)
			},
		},
		{
			name: "string booleans and scalar lists",
			raw:  `{"content_appropriateness":{"appropriate":"false","concerns":"violent imagery"},"colors_detected":["", null, "#000"]}`,
			check: func(t *testing.T, r Record) {
				assert.False(t, r.ContentAppropriateness.Appropriate)
				assert.Equal(t, []string{"violent imagery"}, r.ContentAppropriateness.Concerns)
				assert.Equal(t, []string{"#000"}, r.ColorsDetected)
			},
		},
		{
			name: "wrong sub-object types",
			raw:  `{"visual_quality":"bad","accessibility":[1,2],"overall_compliance":null}`,
			check: func(t *testing.T, r Record) {
				assert.Equal(t, DefaultScore, r.VisualQuality.Score)
				assert.False(t, r.Accessibility.ContrastAdequate)
				assert.Equal(t, DefaultConfidence, r.OverallCompliance.Confidence)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newNormalizer().Normalize(tt.raw)
			assertWellFormed(t, r)
			assert.False(t, r.ParseFailed)
			tt.check(t, r)
		})
	}
}

func TestNormalize_MalformedTextUsesHints(t *testing.T) {
	raw := "The banner uses brand purple #5754FF and shows the logo clearly, but {oops"
	r := newNormalizer().Normalize(raw)

	assertWellFormed(t, r)
	assert.True(t, r.ParseFailed)
	assert.True(t, r.LogoPresent)
	assert.Contains(t, r.ColorsDetected, "#5754FF")
	assert.Equal(t, []string{"LogicCart branding"}, r.BrandElements)
	assert.Equal(t, FallbackScore, r.VisualQuality.Score)
	assert.Equal(t, []string{ParseFailureIssue}, r.VisualQuality.Issues)
	assert.False(t, r.OverallCompliance.Compliant)
	assert.Equal(t, FallbackConfidence, r.OverallCompliance.Confidence)
	assert.Equal(t, raw, r.Raw)
}

func TestNormalize_FallbackWithoutHints(t *testing.T) {
	r := newNormalizer().Normalize("I cannot help with that.")
	assertWellFormed(t, r)
	assert.Empty(t, r.ColorsDetected)
	assert.False(t, r.LogoPresent)
	assert.True(t, r.ContentAppropriateness.Appropriate)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"colors_detected":["#5754FF"],"logo_present":"yes","visual_quality":{"score":"0.3","issues":["blurry"]}}`,
		`{"content_appropriateness":{"appropriate":0,"concerns":["gore", 42]},"overall_compliance":{"confidence":1.5}}`,
	}
	n := newNormalizer()
	for _, in := range inputs {
		first := n.Normalize(in)
		data, err := json.Marshal(first)
		require.NoError(t, err)
		second := n.Normalize(string(data))

		first.Raw, second.Raw = "", ""
		assert.Equal(t, first, second, in)
	}
}

func rec(score, conf float64, appropriate bool, colors ...string) Record {
	r := emptyRecord()
	r.VisualQuality.Score = score
	r.OverallCompliance.Confidence = conf
	r.ContentAppropriateness.Appropriate = appropriate
	r.ColorsDetected = colors
	return r
}

func TestCombine_SingleRecordUnchanged(t *testing.T) {
	r := rec(0.6, 0.55, true, "#5754FF")
	r.OverallCompliance.Summary = "desktop"
	assert.Equal(t, r, Combine(r))
}

func TestCombine_Reduction(t *testing.T) {
	a := rec(0.8, 1.0, true, "#5754FF")
	a.LogoPresent = true
	a.Accessibility = Accessibility{ContrastAdequate: true, TextReadable: true}
	b := rec(0.4, 0.5, true, "#FFFFFF", "#5754FF")
	b.VisualQuality.Issues = []string{"slight blur"}
	b.Accessibility = Accessibility{ContrastAdequate: true}

	got := Combine(a, b)
	assertWellFormed(t, got)
	assert.Equal(t, []string{"#5754FF", "#FFFFFF"}, got.ColorsDetected)
	assert.True(t, got.LogoPresent)
	assert.InDelta(t, 0.6, got.VisualQuality.Score, 1e-9)
	assert.InDelta(t, 0.75, got.OverallCompliance.Confidence, 1e-9)
	assert.True(t, got.OverallCompliance.Compliant)
	assert.Equal(t, []string{"slight blur"}, got.VisualQuality.Issues)
	assert.True(t, got.Accessibility.ContrastAdequate)
	assert.False(t, got.Accessibility.TextReadable)
	assert.Equal(t, "Combined analysis of 2 images", got.OverallCompliance.Summary)
}

func TestCombine_InappropriateDominates(t *testing.T) {
	got := Combine(rec(0.9, 0.95, true), rec(0.9, 0.95, false))
	assert.False(t, got.ContentAppropriateness.Appropriate)
	assert.False(t, got.OverallCompliance.Compliant)
}

func TestCombine_OrderIndependent(t *testing.T) {
	records := []Record{
		rec(0.25, 0.5, true, "#111111"),
		rec(0.75, 1.0, true, "#222222"),
		rec(0.5, 0.25, false, "#111111"),
	}
	forward := Combine(records[0], records[1], records[2])
	backward := Combine(records[2], records[1], records[0])
	assert.Equal(t, forward, backward)

	// Merging shards gives the same result as folding sequentially.
	left := NewAggregate().Add(records[0])
	right := NewAggregate().Add(records[1]).Add(records[2])
	assert.Equal(t, forward, left.Merge(right).Record())
	assert.Equal(t, 3, left.Len())
}

func TestCombine_Empty(t *testing.T) {
	r := Combine()
	assertWellFormed(t, r)
	assert.Equal(t, DefaultScore, r.VisualQuality.Score)
}
