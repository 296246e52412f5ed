// Package email composes the notification sent to a ticket's requester.
// Composition is pure: the same inputs always render the same message.
package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/fpang/ticket-decision-engine/internal/assets"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
)

// MaxBullets caps the reason bullets rendered in a message.
const MaxBullets = 5

const (
	placeholder   = "(from form)"
	timestampForm = "2006-01-02 15:04:05 UTC"
)

// Message is a rendered email.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AssetLink is a named, retrievable asset URL.
type AssetLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Context carries everything a message may restate. A nil *Context renders
// with placeholders.
type Context struct {
	Ticket             *ticket.Ticket
	Assets             []AssetLink
	Now                time.Time
	SupportEmail       string
	TeamName           string
	BrandGuidelinesURL string
	BrandColor         string
}

// FallbackOutcome selects the wording of a rule-based fallback message.
type FallbackOutcome int

const (
	FallbackNeedsInfo FallbackOutcome = iota
	FallbackRejected
)

// data is the template view model.
type data struct {
	Name               string
	TicketID           string
	Title              string
	Bullets            []string
	PageArea           string
	PageURLs           string
	LaunchDate         string
	Description        string
	CopyEN             string
	CopyZH             string
	Department         string
	Images             []string
	SupportEmail       string
	TeamName           string
	BrandGuidelinesURL string
	BrandColor         string
	Timestamp          string
	Submitted          string
	Detail             string
	Rejected           bool
	Decision           string
	Confidence         string
}

func (c *Context) view(bullets []string) data {
	d := data{
		Name:               "there",
		TicketID:           "unknown",
		Title:              "Request",
		Bullets:            Bullets(bullets),
		PageArea:           placeholder,
		PageURLs:           placeholder,
		LaunchDate:         placeholder,
		Department:         placeholder,
		SupportEmail:       "dev@logiccart.com",
		TeamName:           "LogicCart Web Development Team",
		BrandGuidelinesURL: "https://logiccart.com/brand-guidelines",
		BrandColor:         "#5754FF",
	}
	if c == nil {
		return d
	}
	if !c.Now.IsZero() {
		d.Timestamp = c.Now.UTC().Format(timestampForm)
	}
	if c.SupportEmail != "" {
		d.SupportEmail = c.SupportEmail
	}
	if c.TeamName != "" {
		d.TeamName = c.TeamName
	}
	if c.BrandGuidelinesURL != "" {
		d.BrandGuidelinesURL = c.BrandGuidelinesURL
	}
	if c.BrandColor != "" {
		d.BrandColor = c.BrandColor
	}
	for _, a := range c.Assets {
		d.Images = append(d.Images, fmt.Sprintf("%s: %s", a.Name, a.URL))
	}

	t := c.Ticket
	if t == nil {
		return d
	}
	d.Name = t.DisplayName()
	d.TicketID = orDefault(t.ID, d.TicketID)
	d.Title = orDefault(t.Title, orDefault(t.Description, d.Title))
	d.PageArea = orDefault(t.PageArea, placeholder)
	if len(t.PageURLs) > 0 {
		d.PageURLs = strings.Join(t.PageURLs, ", ")
	} else if t.TargetURL != "" {
		d.PageURLs = t.TargetURL
	}
	d.LaunchDate = orDefault(t.LaunchDate, placeholder)
	d.Department = orDefault(t.Department, placeholder)
	d.Description = t.Description
	d.CopyEN = t.CopyEN
	d.CopyZH = t.CopyZH
	d.Submitted = t.CreatedAt
	return d
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Bullets drops blank entries and keeps at most MaxBullets.
func Bullets(reasons []string) []string {
	out := make([]string, 0, MaxBullets)
	for _, r := range reasons {
		if strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, r)
		if len(out) == MaxBullets {
			break
		}
	}
	return out
}

func (c *Context) subject(suffix string) string {
	id := "unknown"
	if c != nil && c.Ticket != nil && c.Ticket.ID != "" {
		id = c.Ticket.ID
	}
	return fmt.Sprintf("New Request %s - %s", id, suffix)
}

func render(name string, d data) string {
	body, err := assets.RenderEmail(name, d)
	if err != nil {
		// Embedded templates are covered by tests; keep a readable body regardless.
		return fmt.Sprintf("Hello %s,\n\n%s\n", d.Name, strings.Join(d.Bullets, "\n"))
	}
	return body
}

// BannerApproved renders the approval message.
func (c *Context) BannerApproved(reasons []string) Message {
	return Message{
		Subject: c.subject("Approved"),
		Body:    render(assets.EmailBannerApproved, c.view(reasons)),
	}
}

// BannerNeedsInfo renders the request for additional information.
func (c *Context) BannerNeedsInfo(reasons []string) Message {
	return Message{
		Subject: c.subject("Additional Information Required"),
		Body:    render(assets.EmailBannerNeedsInfo, c.view(reasons)),
	}
}

// BannerRejected renders the rejection message.
func (c *Context) BannerRejected(reasons []string) Message {
	return Message{
		Subject: c.subject("Not Approved"),
		Body:    render(assets.EmailBannerRejected, c.view(reasons)),
	}
}

// FallbackBanner renders the message used when visual analysis was unavailable.
func (c *Context) FallbackBanner(outcome FallbackOutcome, reasons []string) Message {
	d := c.view(reasons)
	d.Rejected = outcome == FallbackRejected
	suffix := "Additional Information Required"
	if d.Rejected {
		suffix = "Not Approved"
	}
	return Message{
		Subject: c.subject(suffix),
		Body:    render(assets.EmailFallbackBanner, d),
	}
}

// FeatureGuidance renders the requirements checklist for feature requests.
func (c *Context) FeatureGuidance() Message {
	return Message{
		Subject: c.subject("Additional Information Required"),
		Body:    render(assets.EmailFeatureGuidance, c.view(nil)),
	}
}

// ManualReview renders the apology sent when processing failed.
func (c *Context) ManualReview(detail string) Message {
	d := c.view(nil)
	d.Detail = detail
	return Message{
		Subject: "Request Requires Manual Review - LogicCart",
		Body:    render(assets.EmailManualReview, d),
	}
}

// DefaultSubject is used when a decision carries no message of its own.
func DefaultSubject(ticketID, decision string) string {
	return fmt.Sprintf("Request %s - %s", ticketID, decision)
}

// DefaultBody renders the plain notification body for a decision without a message.
func DefaultBody(ticketID, decision string, reasons []string, confidence float64, processedAt time.Time) string {
	d := data{
		TicketID:   ticketID,
		Decision:   decision,
		Confidence: fmt.Sprintf("%.2f", confidence),
		Bullets:    Bullets(reasons),
		Timestamp:  processedAt.UTC().Format(timestampForm),
	}
	return render(assets.EmailDefaultNotification, d)
}
