// Package ticket defines website-change tickets and their DynamoDB store.
package ticket

import (
	"strings"
	"unicode"
)

// RequestType classifies a ticket. Values other than the known constants are
// kept verbatim so messages can name what was submitted.
type RequestType string

const (
	NewBanner  RequestType = "NEW_BANNER"
	NewFeature RequestType = "NEW_FEATURE"
	Unknown    RequestType = "UNKNOWN"
)

// ParseRequestType normalizes a stored change type ("New Banner" → NEW_BANNER).
func ParseRequestType(s string) RequestType {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Unknown
	}
	return RequestType(strings.ReplaceAll(s, " ", "_"))
}

// Asset is an image attached to a ticket.
type Asset struct {
	S3Key       string `json:"s3Key" dynamodbav:"s3Key"`
	Filename    string `json:"filename,omitempty" dynamodbav:"filename,omitempty"`
	Width       int    `json:"width,omitempty" dynamodbav:"width,omitempty"`
	Height      int    `json:"height,omitempty" dynamodbav:"height,omitempty"`
	AltText     string `json:"altText,omitempty" dynamodbav:"altText,omitempty"`
	ContentType string `json:"contentType,omitempty" dynamodbav:"contentType,omitempty"`
	SizeKB      int    `json:"sizeKB,omitempty" dynamodbav:"sizeKB,omitempty"`
}

// Name returns the display name of the asset, falling back to the key basename.
func (a Asset) Name() string {
	if a.Filename != "" {
		return a.Filename
	}
	if i := strings.LastIndex(a.S3Key, "/"); i >= 0 {
		return a.S3Key[i+1:]
	}
	return a.S3Key
}

// Ticket is a website-change request as submitted by a requester.
type Ticket struct {
	ID             string      `json:"ticketId"`
	RequestType    RequestType `json:"requestType"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	PageArea       string      `json:"pageArea"`
	PageURLs       []string    `json:"pageUrls"`
	TargetURL      string      `json:"targetUrl"`
	LaunchDate     string      `json:"targetLaunchDate"`
	Urgency        string      `json:"urgency"`
	RequesterEmail string      `json:"requesterEmail"`
	RequesterName  string      `json:"requesterName"`
	Department     string      `json:"department"`
	Language       string      `json:"language"`
	CopyEN         string      `json:"copyEn"`
	CopyZH         string      `json:"copyZh"`
	Notes          string      `json:"notes"`
	Status         string      `json:"status"`
	CreatedAt      string      `json:"createdAt"`
	Assets         []Asset     `json:"assets"`
}

// ApplyDefaults fills derived and defaulted fields after loading.
func (t *Ticket) ApplyDefaults() {
	if t.RequestType == "" {
		t.RequestType = Unknown
	} else {
		t.RequestType = ParseRequestType(string(t.RequestType))
	}
	if t.TargetURL == "" && len(t.PageURLs) > 0 {
		t.TargetURL = t.PageURLs[0]
	}
	if t.Urgency == "" {
		t.Urgency = "medium"
	}
	if t.Language == "" {
		t.Language = "English"
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.PageURLs == nil {
		t.PageURLs = []string{}
	}
	if t.Assets == nil {
		t.Assets = []Asset{}
	}
}

// CandidateURLs returns the target URL followed by page URLs, trimmed,
// without blanks or duplicates, in first-seen order.
func (t *Ticket) CandidateURLs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range append([]string{t.TargetURL}, t.PageURLs...) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// TextFields returns the free-text fields scanned by heuristics.
func (t *Ticket) TextFields() []string {
	return []string{t.Title, t.Description, t.CopyEN, t.CopyZH, t.Notes}
}

// DisplayName returns the name used to greet the requester.
func (t *Ticket) DisplayName() string {
	if t == nil {
		return "there"
	}
	if name := strings.TrimSpace(t.RequesterName); name != "" {
		return name
	}
	if name := NameFromEmail(t.RequesterEmail); name != "" {
		return name
	}
	return "there"
}

// NameFromEmail derives a display name from an email local part
// ("jane.doe@example.com" → "Jane Doe").
func NameFromEmail(email string) string {
	local, _, found := strings.Cut(strings.TrimSpace(email), "@")
	if !found || local == "" {
		return ""
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// StatusFor maps a decision token to the ticket status column value.
func StatusFor(decision string) string {
	switch decision {
	case "APPROVE":
		return "approved"
	case "REJECT":
		return "rejected"
	default:
		return "needs_info"
	}
}
