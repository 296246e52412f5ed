package review

import (
	"time"

	"github.com/fpang/ticket-decision-engine/internal/decision"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
)

// Evaluation is the input of an offline decision.
type Evaluation struct {
	Ticket *ticket.Ticket
	// RawAnalysis is model output to interpret in place of a live call.
	RawAnalysis string
	// VisionErr, when set, simulates a failed vision call.
	VisionErr error
	Assets    []email.AssetLink
}

// Evaluate decides a ticket without touching any collaborator. It runs the
// same URL gate, interpreter, fallback and routing as ProcessTicket.
func (e *Engine) Evaluate(ev Evaluation) Result {
	now := e.deps.Now()
	t := ev.Ticket
	res := Result{
		ProcessedAt: now.UTC().Format(time.RFC3339),
		AIAnalysis:  true,
		RequestType: string(ticket.Unknown),
	}
	if t == nil {
		res.Decision = decision.NewManualReview(e.emailContext(nil, nil, now), "ticket is missing")
		return res
	}
	res.TicketID = t.ID
	res.RequestType = string(t.RequestType)
	res.RequesterEmail = t.RequesterEmail

	ec := e.emailContext(t, ev.Assets, now)
	switch t.RequestType {
	case ticket.NewBanner:
		findings := e.validator.Check(t.CandidateURLs())
		switch {
		case findings.Rejected():
			res.Decision = decision.URLRejected(findings, ec)
		case ev.VisionErr != nil:
			res.Decision = e.router.Decide(ev.VisionErr, t, ec)
		case ev.RawAnalysis == "":
			res.Decision = decision.NoImage(findings.NeedsInfo, ec)
		default:
			res.Decision = e.interpreter.Interpret(decision.Input{
				Record:       e.normalizer.Normalize(ev.RawAnalysis),
				Ticket:       t,
				PriorReasons: findings.NeedsInfo,
				Email:        ec,
			})
		}
	case ticket.NewFeature:
		res.Decision = e.fallback.Feature(ec)
	default:
		res.Decision = decision.UnknownRequestType(t.RequestType, ec)
	}
	return res
}
