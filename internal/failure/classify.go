// Package failure classifies integration errors and turns them into
// decisions so a ticket always receives a well-formed outcome.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Category is the classification of an integration failure.
type Category string

const (
	VisionUnavailable Category = "BEDROCK_UNAVAILABLE"
	VisionTimeout     Category = "BEDROCK_TIMEOUT"
	VisionQuota       Category = "BEDROCK_QUOTA_EXCEEDED"
	StorageAccess     Category = "S3_ACCESS_ERROR"
	Database          Category = "DYNAMODB_ERROR"
	Notification      Category = "SNS_ERROR"
	Network           Category = "NETWORK_ERROR"
	Validation        Category = "VALIDATION_ERROR"
	Unknown           Category = "UNKNOWN_ERROR"
)

// IsVision reports whether the category means the vision model could not be used.
func (c Category) IsVision() bool {
	return c == VisionUnavailable || c == VisionTimeout || c == VisionQuota
}

// Rule maps keywords to a category. Keywords are matched as lower-case
// substrings of the error description.
type Rule struct {
	Category Category
	Keywords []string
}

// DefaultRules is the ordered classification table. Earlier rules win, so
// the specific vision failures come before the broader service keywords.
var DefaultRules = []Rule{
	{VisionQuota, []string{"throttl", "quota", "rate limit", "rate exceeded", "too many requests", "resource exhausted"}},
	{VisionTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{VisionUnavailable, []string{"bedrock", "vision model", "unavailable", "endpoint", "gemini"}},
	{StorageAccess, []string{"s3", "bucket", "access denied", "no such key", "nosuchkey", "forbidden"}},
	{Database, []string{"dynamodb", "provisioned throughput", "conditional check failed"}},
	{Notification, []string{"sns", "topic", "publish", "notification"}},
	{Network, []string{"network", "dns", "connection", "unreachable", "no such host"}},
	{Validation, []string{"validation", "invalid", "schema", "format"}},
}

// serviceCategories routes failed AWS operations by the owning service,
// which is more reliable than message keywords when it is known.
var serviceCategories = map[string]Category{
	"s3":       StorageAccess,
	"dynamodb": Database,
	"sns":      Notification,
}

// visionError is implemented by errors that report the vision model as unusable.
type visionError interface {
	error
	VisionUnavailable() bool
}

// Classifier assigns a Category to an error.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from an ordered rule table.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the category for err. Failed AWS operations are routed
// by service; everything else goes through the keyword table, matched
// against the message, the Go type names in the chain and any API error code.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		return Unknown
	}
	text := describe(err)

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		svc := strings.ToLower(strings.ReplaceAll(opErr.Service(), " ", ""))
		if cat, ok := serviceCategories[svc]; ok {
			return cat
		}
		if strings.HasPrefix(svc, "bedrock") {
			return c.visionCategory(text)
		}
	}
	var ve visionError
	if errors.As(err, &ve) && ve.VisionUnavailable() {
		return c.visionCategory(text)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return VisionTimeout
	}

	for _, r := range c.rules {
		if matches(text, r.Keywords) {
			return r.Category
		}
	}
	return Unknown
}

// visionCategory narrows a known vision failure to quota, timeout or unavailable.
func (c *Classifier) visionCategory(text string) Category {
	for _, r := range c.rules {
		if r.Category.IsVision() && matches(text, r.Keywords) {
			return r.Category
		}
	}
	return VisionUnavailable
}

func matches(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// describe flattens an error into lower-case text for keyword matching.
func describe(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, " %T", e)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		b.WriteString(" ")
		b.WriteString(apiErr.ErrorCode())
	}
	return strings.ToLower(b.String())
}
