// Package assets provides embedded prompt and email templates.
//
// Templates are stored as text files under prompts/ and emails/ and embedded
// at compile time so wording can change without touching Go code.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

// VisionUserPrompt asks the model for the structured banner analysis.
//
//go:embed prompts/vision-user.txt
var VisionUserPrompt string

//go:embed prompts/vision-system.txt
var visionSystemTemplate string

//go:embed emails/*.txt
var emailFS embed.FS

// Pre-parsed templates. template.Must panics on malformed templates, which
// surfaces mistakes at startup rather than when a ticket is processed.
var (
	visionSystemTmpl = template.Must(template.New("vision-system").Parse(visionSystemTemplate))
	emailTmpl        = template.Must(template.ParseFS(emailFS, "emails/*.txt"))
)

// VisionPromptData holds the dynamic values of the vision system prompt.
type VisionPromptData struct {
	PolicyText string
	BrandColor string
}

// RenderVisionSystemPrompt renders the visual-scope system prompt.
func RenderVisionSystemPrompt(data VisionPromptData) string {
	var buf bytes.Buffer
	// The template only references string fields, so execution cannot fail.
	_ = visionSystemTmpl.Execute(&buf, data)
	return buf.String()
}

// Email template names.
const (
	EmailBannerApproved      = "banner-approved.txt"
	EmailBannerNeedsInfo     = "banner-needs-info.txt"
	EmailBannerRejected      = "banner-rejected.txt"
	EmailFallbackBanner      = "fallback-banner.txt"
	EmailFeatureGuidance     = "feature-guidance.txt"
	EmailManualReview        = "manual-review.txt"
	EmailDefaultNotification = "default-notification.txt"
)

// RenderEmail executes the named email template with data.
func RenderEmail(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render email %s: %w", name, err)
	}
	return buf.String(), nil
}
