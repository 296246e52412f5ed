// Package review runs one ticket through the decision pipeline: load, decide,
// persist, notify. Every failure is converted into a well-formed decision.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/decision"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/failure"
	"github.com/fpang/ticket-decision-engine/internal/metrics"
	"github.com/fpang/ticket-decision-engine/internal/notify"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/urlcheck"
	"github.com/fpang/ticket-decision-engine/internal/vision"
)

// TicketStore loads tickets and records outcomes.
type TicketStore interface {
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	WriteDecision(ctx context.Context, id string, rec ticket.DecisionRecord) error
	MarkEmailSent(ctx context.Context, id string, sent ticket.EmailSent) error
	MarkNotificationFailed(ctx context.Context, id, detail, at string) error
}

// PolicySource returns the policy text for a key.
type PolicySource interface {
	GetPolicy(ctx context.Context, key string) (string, error)
}

// AssetResolver turns an asset key into a retrievable URL.
type AssetResolver interface {
	AssetURL(ctx context.Context, key string) (string, error)
}

// VisionAnalyzer analyzes a set of banner images.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, links []email.AssetLink, policy string) vision.Outcome
}

// Notifier delivers the requester notification and returns a message ID.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) (string, error)
}

// EventEmitter publishes decision events.
type EventEmitter interface {
	EmitDecision(ctx context.Context, event notify.DecisionEvent) error
}

// AssetTagger records the outcome on each reviewed asset.
type AssetTagger interface {
	TagDecision(ctx context.Context, key, ticketID, decision string) error
}

// UserContext identifies the caller that triggered a review.
type UserContext struct {
	Email    string `json:"email"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// Result is the decision for one processing attempt plus what happened to it.
type Result struct {
	decision.Decision

	TicketID                   string       `json:"ticket_id"`
	AttemptID                  string       `json:"attempt_id"`
	RequestType                string       `json:"request_type"`
	ProcessedAt                string       `json:"processed_at"`
	RequesterEmail             string       `json:"requester_email,omitempty"`
	AIAnalysis                 bool         `json:"ai_analysis"`
	UserContext                *UserContext `json:"user_context,omitempty"`
	ModelUsed                  string       `json:"model_used,omitempty"`
	Persisted                  bool         `json:"persisted"`
	NotificationSent           bool         `json:"notification_sent"`
	ManualNotificationRequired bool         `json:"manual_notification_required,omitempty"`
	NotificationError          string       `json:"notification_error,omitempty"`
}

// Deps are the collaborators of an Engine. Notifier, Events and Tagger are
// optional and skipped when nil.
type Deps struct {
	Tickets  TicketStore
	Policies PolicySource
	Assets   AssetResolver
	Vision   VisionAnalyzer
	Notifier Notifier
	Events   EventEmitter
	Tagger   AssetTagger
	Config   *config.Config
	Now      func() time.Time
}

// Engine processes tickets.
type Engine struct {
	deps        Deps
	validator   *urlcheck.Validator
	normalizer  *analysis.Normalizer
	interpreter *decision.Interpreter
	fallback    *decision.Fallback
	router      *failure.Router
}

// New builds an Engine from its collaborators.
func New(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	p := d.Config.Policy
	v := urlcheck.New(p.ApprovedDomains, p.RedirectHints)
	fb := decision.NewFallback(v, p)
	return &Engine{
		deps:        d,
		validator:   v,
		normalizer:  analysis.NewNormalizer(p),
		interpreter: decision.NewInterpreter(p),
		fallback:    fb,
		router:      failure.NewRouter(failure.NewClassifier(failure.DefaultRules), fb),
	}
}

// outcome is the decision plus the evidence behind it.
type outcome struct {
	decision decision.Decision
	model    string
	raw      string
}

// ProcessTicket decides ticketID and records the result. It never returns
// an error; failures are reflected in the Result.
func (e *Engine) ProcessTicket(ctx context.Context, ticketID string, user *UserContext) Result {
	start := e.deps.Now()
	res := Result{
		TicketID:    ticketID,
		AttemptID:   uuid.New().String(),
		ProcessedAt: start.UTC().Format(time.RFC3339),
		AIAnalysis:  true,
		UserContext: user,
		RequestType: string(ticket.Unknown),
	}
	logger := log.With().Str("ticketId", ticketID).Str("attemptId", res.AttemptID).Logger()

	t, err := e.deps.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load ticket")
		metrics.Failure("load", string(e.router.Classify(err)))
		res.Decision = e.router.Decide(err, nil, e.emailContext(nil, nil, start))
		e.finish(res, start)
		return res
	}

	res.RequestType = string(t.RequestType)
	res.RequesterEmail = t.RequesterEmail

	var out outcome
	switch t.RequestType {
	case ticket.NewBanner:
		out = e.decideBanner(ctx, t, start)
	case ticket.NewFeature:
		out.decision = e.fallback.Feature(e.emailContext(t, nil, start))
	default:
		out.decision = decision.UnknownRequestType(t.RequestType, e.emailContext(t, nil, start))
	}
	res.Decision = e.checkContract(out.decision, t, start)
	res.ModelUsed = out.model

	res.Persisted = e.persist(ctx, t, res, out.raw)
	e.sendNotification(ctx, t, &res, start)
	e.emit(ctx, res)
	e.tagAssets(ctx, t, res)
	e.finish(res, start)
	return res
}

// decideBanner runs the URL gate, then visual analysis.
func (e *Engine) decideBanner(ctx context.Context, t *ticket.Ticket, now time.Time) outcome {
	links := e.resolveAssets(ctx, t)
	ec := e.emailContext(t, links, now)

	findings := e.validator.Check(t.CandidateURLs())
	if findings.Rejected() {
		return outcome{decision: decision.URLRejected(findings, ec)}
	}

	policy, err := e.deps.Policies.GetPolicy(ctx, e.deps.Config.PolicyKey)
	if err != nil {
		metrics.Failure("policy", string(e.router.Classify(err)))
		return outcome{decision: e.router.Decide(err, t, ec)}
	}

	if len(links) == 0 {
		return outcome{decision: decision.NoImage(findings.NeedsInfo, ec)}
	}

	vo := e.deps.Vision.Analyze(ctx, links, policy)
	if vo.Err != nil {
		if errors.Is(vo.Err, vision.ErrNoImages) {
			return outcome{decision: decision.NoImage(findings.NeedsInfo, ec), model: vo.Model}
		}
		metrics.Failure("vision", string(e.router.Classify(vo.Err)))
		return outcome{decision: e.router.Decide(vo.Err, t, ec), model: vo.Model}
	}

	d := e.interpreter.Interpret(decision.Input{
		Record:       vo.Record,
		Ticket:       t,
		PriorReasons: findings.NeedsInfo,
		Email:        ec,
	})
	return outcome{decision: d, model: vo.Model, raw: vo.Raw}
}

// resolveAssets presigns every asset key. Assets that cannot be resolved are skipped.
func (e *Engine) resolveAssets(ctx context.Context, t *ticket.Ticket) []email.AssetLink {
	var links []email.AssetLink
	for _, a := range t.Assets {
		if a.S3Key == "" {
			continue
		}
		url, err := e.deps.Assets.AssetURL(ctx, a.S3Key)
		if err != nil {
			log.Warn().Err(err).Str("ticketId", t.ID).Str("key", a.S3Key).Msg("Could not resolve asset URL")
			continue
		}
		links = append(links, email.AssetLink{Name: a.Name(), URL: url})
	}
	return links
}

func (e *Engine) emailContext(t *ticket.Ticket, links []email.AssetLink, now time.Time) *email.Context {
	return &email.Context{
		Ticket:       t,
		Assets:       links,
		Now:          now,
		SupportEmail: e.deps.Config.SupportEmail,
		TeamName:     e.deps.Config.TeamName,
		BrandColor:   e.deps.Config.Policy.FallbackColor,
	}
}

// checkContract replaces a decision that breaks the output contract with a
// manual review decision.
func (e *Engine) checkContract(d decision.Decision, t *ticket.Ticket, now time.Time) decision.Decision {
	err := d.Validate()
	if err == nil {
		return d
	}
	log.Error().Err(err).Str("ticketId", t.ID).Str("decision", string(d.Decision)).Msg("Decision violates output contract")
	metrics.Failure("contract", string(failure.Validation))
	return decision.NewManualReview(e.emailContext(t, nil, now), err.Error())
}

func (e *Engine) persist(ctx context.Context, t *ticket.Ticket, res Result, raw string) bool {
	err := e.deps.Tickets.WriteDecision(ctx, t.ID, ticket.DecisionRecord{
		Decision:         string(res.Decision.Decision),
		Reasons:          res.Reasons,
		Confidence:       res.Confidence,
		ProcessedAt:      res.ProcessedAt,
		ModelUsed:        res.ModelUsed,
		AnalysisMethod:   res.AnalysisMethod,
		FallbackAnalysis: res.FallbackAnalysis,
		RawAnalysis:      raw,
	})
	if err != nil {
		log.Error().Err(err).Str("ticketId", t.ID).Msg("Failed to persist decision")
		metrics.Failure("persist", string(e.router.Classify(err)))
		return false
	}
	return true
}

func (e *Engine) sendNotification(ctx context.Context, t *ticket.Ticket, res *Result, now time.Time) {
	if e.deps.Notifier == nil {
		log.Warn().Str("ticketId", t.ID).Msg("Notifier not configured; skipping notification")
		return
	}

	n := notify.Notification{
		TicketID:       t.ID,
		RequesterEmail: t.RequesterEmail,
		Decision:       string(res.Decision.Decision),
	}
	if res.Email != nil && res.Email.Subject != "" && res.Email.Body != "" {
		n.Subject, n.Body = res.Email.Subject, res.Email.Body
	} else {
		n.Subject = email.DefaultSubject(t.ID, n.Decision)
		n.Body = email.DefaultBody(t.ID, n.Decision, res.Reasons, res.Confidence, now)
	}

	msgID, err := e.deps.Notifier.Notify(ctx, n)
	if err != nil {
		routed := e.router.Route(err, t, e.emailContext(t, nil, now))
		detail := routed.Detail
		if !routed.NotificationFailed {
			detail = "Decision completed but notification failed: " + err.Error()
		}
		metrics.Failure("notify", string(routed.Category))
		res.ManualNotificationRequired = true
		res.NotificationError = detail
		if mErr := e.deps.Tickets.MarkNotificationFailed(ctx, t.ID, detail, res.ProcessedAt); mErr != nil {
			log.Error().Err(mErr).Str("ticketId", t.ID).Msg("Failed to record notification failure")
		}
		return
	}

	res.NotificationSent = true
	if err := e.deps.Tickets.MarkEmailSent(ctx, t.ID, ticket.EmailSent{
		SentAt:    e.deps.Now().UTC().Format(time.RFC3339),
		Subject:   n.Subject,
		Recipient: t.RequesterEmail,
		Status:    "sent",
		MessageID: msgID,
	}); err != nil {
		log.Warn().Err(err).Str("ticketId", t.ID).Msg("Failed to record sent email")
	}
}

func (e *Engine) emit(ctx context.Context, res Result) {
	if e.deps.Events == nil {
		return
	}
	ev := notify.DecisionEvent{
		TicketID:         res.TicketID,
		RequestType:      res.RequestType,
		Decision:         string(res.Decision.Decision),
		Confidence:       res.Confidence,
		Reasons:          res.Reasons,
		AnalysisMethod:   res.AnalysisMethod,
		FallbackAnalysis: res.FallbackAnalysis,
		ManualReview:     res.ManualReviewRequired,
		ModelUsed:        res.ModelUsed,
		ProcessedAt:      res.ProcessedAt,
	}
	if res.UserContext != nil {
		ev.UserID = res.UserContext.UserID
	}
	if err := e.deps.Events.EmitDecision(ctx, ev); err != nil {
		log.Warn().Err(err).Str("ticketId", res.TicketID).Msg("Failed to emit decision event")
	}
}

func (e *Engine) tagAssets(ctx context.Context, t *ticket.Ticket, res Result) {
	if e.deps.Tagger == nil || t.RequestType != ticket.NewBanner {
		return
	}
	for _, a := range t.Assets {
		if a.S3Key == "" {
			continue
		}
		if err := e.deps.Tagger.TagDecision(ctx, a.S3Key, t.ID, string(res.Decision.Decision)); err != nil {
			log.Warn().Err(err).Str("ticketId", t.ID).Str("key", a.S3Key).Msg("Failed to tag asset")
		}
	}
}

// finish logs the decision reasoning and emits decision metrics.
func (e *Engine) finish(res Result, start time.Time) {
	elapsed := e.deps.Now().Sub(start)
	log.Info().
		Str("ticketId", res.TicketID).
		Str("attemptId", res.AttemptID).
		Str("requestType", res.RequestType).
		Str("decision", string(res.Decision.Decision)).
		Float64("confidence", res.Confidence).
		Str("analysisMethod", res.AnalysisMethod).
		Strs("reasons", res.Reasons).
		Bool("fallback", res.FallbackAnalysis).
		Bool("manualReview", res.ManualReviewRequired).
		Bool("persisted", res.Persisted).
		Bool("notificationSent", res.NotificationSent).
		Str("model", res.ModelUsed).
		Dur("elapsed", elapsed).
		Msg("Ticket decision")
	metrics.DecisionRecorded(res.TicketID, string(res.Decision.Decision), res.AnalysisMethod, res.Confidence, res.FallbackAnalysis, elapsed)
}
