package failure

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/decision"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
)

// Resolution is the outcome of routing a failure. Decision is nil when the
// failure happened after a decision was already made (notification errors).
type Resolution struct {
	Category           Category
	Decision           *decision.Decision
	NotificationFailed bool
	Detail             string
}

// Router converts classified failures into decisions.
type Router struct {
	classifier *Classifier
	fallback   *decision.Fallback
}

// NewRouter builds a Router.
func NewRouter(c *Classifier, f *decision.Fallback) *Router {
	return &Router{classifier: c, fallback: f}
}

// Route classifies err and returns the resolution for the ticket. t may be
// nil when the ticket itself could not be loaded.
func (r *Router) Route(err error, t *ticket.Ticket, ec *email.Context) Resolution {
	cat := r.classifier.Classify(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	res := Resolution{Category: cat}

	rt := ticket.Unknown
	if t != nil {
		rt = t.RequestType
	}

	switch {
	case cat.IsVision():
		switch rt {
		case ticket.NewBanner:
			d := r.fallback.Banner(t, ec, msg)
			res.Decision = &d
			res.Detail = d.FallbackReason
		case ticket.NewFeature:
			d := r.fallback.Feature(ec)
			d.FallbackReason = fmt.Sprintf("Vision not required for features; guidance generated. (%s)", msg)
			res.Decision = &d
			res.Detail = d.FallbackReason
		default:
			res = manualReview(res, ec, "Unknown request type during vision outage")
		}
	case cat == StorageAccess:
		res = manualReview(res, ec, "Unable to access required policy/resources: "+msg)
	case cat == Database:
		res = manualReview(res, ec, "Database access error: "+msg)
	case cat == Notification:
		res.NotificationFailed = true
		res.Detail = "Decision completed but notification failed: " + msg
	default:
		res = manualReview(res, ec, msg)
	}

	log.Warn().
		Err(err).
		Str("category", string(cat)).
		Str("requestType", string(rt)).
		Bool("notificationFailed", res.NotificationFailed).
		Str("detail", res.Detail).
		Msg("Failure routed")
	return res
}

func manualReview(res Resolution, ec *email.Context, detail string) Resolution {
	d := decision.NewManualReview(ec, detail)
	res.Decision = &d
	res.Detail = detail
	return res
}

// Classify exposes the router's classifier.
func (r *Router) Classify(err error) Category {
	return r.classifier.Classify(err)
}

// Decide routes err and always returns a decision. Failures that carry no
// decision of their own become a manual review.
func (r *Router) Decide(err error, t *ticket.Ticket, ec *email.Context) decision.Decision {
	res := r.Route(err, t, ec)
	if res.Decision != nil {
		return *res.Decision
	}
	return decision.NewManualReview(ec, res.Detail)
}
