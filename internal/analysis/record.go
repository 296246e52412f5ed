// Package analysis turns free-form vision model output into a normalized
// Record and combines per-image records into one.
package analysis

// Default field values applied when the model omits or garbles a field.
const (
	DefaultScore       = 0.5
	DefaultConfidence  = 0.5
	FallbackScore      = 0.4
	FallbackConfidence = 0.3

	ParseFailureIssue = "Unable to parse model JSON"
	FallbackSummary   = "Fallback generated due to parsing issues"
)

// Quality is the model's visual quality assessment.
type Quality struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

// Accessibility flags.
type Accessibility struct {
	ContrastAdequate bool `json:"contrast_adequate"`
	TextReadable     bool `json:"text_readable"`
}

// Appropriateness is the content suitability assessment.
type Appropriateness struct {
	Appropriate bool     `json:"appropriate"`
	Concerns    []string `json:"concerns"`
}

// Compliance is the model's overall verdict.
type Compliance struct {
	Compliant  bool    `json:"compliant"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Record is a normalized vision analysis. Lists are never nil and scores
// are always within [0,1].
type Record struct {
	ColorsDetected         []string        `json:"colors_detected"`
	LogoPresent            bool            `json:"logo_present"`
	BrandElements          []string        `json:"brand_elements"`
	TextContent            []string        `json:"text_content"`
	VisualQuality          Quality         `json:"visual_quality"`
	Accessibility          Accessibility   `json:"accessibility"`
	ContentAppropriateness Appropriateness `json:"content_appropriateness"`
	OverallCompliance      Compliance      `json:"overall_compliance"`

	// Raw is the unparsed model text, kept for diagnostics.
	Raw string `json:"-"`
	// ParseFailed marks a record synthesized from unparseable text.
	ParseFailed bool `json:"-"`
}

// Issues returns quality issues followed by content concerns.
func (r Record) Issues() []string {
	out := make([]string, 0, len(r.VisualQuality.Issues)+len(r.ContentAppropriateness.Concerns))
	out = append(out, r.VisualQuality.Issues...)
	return append(out, r.ContentAppropriateness.Concerns...)
}

func emptyRecord() Record {
	return Record{
		ColorsDetected:         []string{},
		BrandElements:          []string{},
		TextContent:            []string{},
		VisualQuality:          Quality{Score: DefaultScore, Issues: []string{}},
		ContentAppropriateness: Appropriateness{Appropriate: true, Concerns: []string{}},
		OverallCompliance:      Compliance{Confidence: DefaultConfidence},
	}
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
