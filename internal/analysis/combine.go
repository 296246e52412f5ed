package analysis

import (
	"fmt"
	"sort"
)

// CombinedCompliance is the mean confidence an image set needs, together
// with appropriate content, to count as compliant.
const CombinedCompliance = 0.7

// Aggregate accumulates per-image records. Add and Merge are associative and
// commutative, so records can be folded in any order or in parallel shards.
type Aggregate struct {
	n             int
	scoreSum      float64
	confidenceSum float64

	colors, brands, texts, issues, concerns map[string]struct{}

	logo            bool
	allAppropriate  bool
	allContrast     bool
	allTextReadable bool
	firstRecord     Record
}

// NewAggregate returns the identity element.
func NewAggregate() *Aggregate {
	return &Aggregate{
		colors:          map[string]struct{}{},
		brands:          map[string]struct{}{},
		texts:           map[string]struct{}{},
		issues:          map[string]struct{}{},
		concerns:        map[string]struct{}{},
		allAppropriate:  true,
		allContrast:     true,
		allTextReadable: true,
	}
}

// Add folds one record into the aggregate.
func (a *Aggregate) Add(r Record) *Aggregate {
	if a.n == 0 {
		a.firstRecord = r
	}
	a.n++
	a.scoreSum += r.VisualQuality.Score
	a.confidenceSum += r.OverallCompliance.Confidence
	addAll(a.colors, r.ColorsDetected)
	addAll(a.brands, r.BrandElements)
	addAll(a.texts, r.TextContent)
	addAll(a.issues, r.VisualQuality.Issues)
	addAll(a.concerns, r.ContentAppropriateness.Concerns)
	a.logo = a.logo || r.LogoPresent
	a.allAppropriate = a.allAppropriate && r.ContentAppropriateness.Appropriate
	a.allContrast = a.allContrast && r.Accessibility.ContrastAdequate
	a.allTextReadable = a.allTextReadable && r.Accessibility.TextReadable
	return a
}

// Merge folds another aggregate into a.
func (a *Aggregate) Merge(b *Aggregate) *Aggregate {
	if b.n == 0 {
		return a
	}
	if a.n == 0 {
		a.firstRecord = b.firstRecord
	}
	a.n += b.n
	a.scoreSum += b.scoreSum
	a.confidenceSum += b.confidenceSum
	mergeSet(a.colors, b.colors)
	mergeSet(a.brands, b.brands)
	mergeSet(a.texts, b.texts)
	mergeSet(a.issues, b.issues)
	mergeSet(a.concerns, b.concerns)
	a.logo = a.logo || b.logo
	a.allAppropriate = a.allAppropriate && b.allAppropriate
	a.allContrast = a.allContrast && b.allContrast
	a.allTextReadable = a.allTextReadable && b.allTextReadable
	return a
}

// Len reports how many records were folded in.
func (a *Aggregate) Len() int { return a.n }

// Record finalizes the aggregate. A single record is returned unchanged;
// an empty aggregate yields the default record.
func (a *Aggregate) Record() Record {
	switch a.n {
	case 0:
		return emptyRecord()
	case 1:
		return a.firstRecord
	}
	meanScore := a.scoreSum / float64(a.n)
	meanConf := a.confidenceSum / float64(a.n)
	return Record{
		ColorsDetected: sortedKeys(a.colors),
		LogoPresent:    a.logo,
		BrandElements:  sortedKeys(a.brands),
		TextContent:    sortedKeys(a.texts),
		VisualQuality: Quality{
			Score:  clamp01(meanScore),
			Issues: sortedKeys(a.issues),
		},
		Accessibility: Accessibility{
			ContrastAdequate: a.allContrast,
			TextReadable:     a.allTextReadable,
		},
		ContentAppropriateness: Appropriateness{
			Appropriate: a.allAppropriate,
			Concerns:    sortedKeys(a.concerns),
		},
		OverallCompliance: Compliance{
			Compliant:  meanConf >= CombinedCompliance && a.allAppropriate,
			Confidence: clamp01(meanConf),
			Summary:    fmt.Sprintf("Combined analysis of %d images", a.n),
		},
	}
}

// Combine reduces per-image records into one.
func Combine(records ...Record) Record {
	agg := NewAggregate()
	for _, r := range records {
		agg.Add(r)
	}
	return agg.Record()
}

func addAll(set map[string]struct{}, items []string) {
	for _, s := range items {
		if s != "" {
			set[s] = struct{}{}
		}
	}
}

func mergeSet(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
