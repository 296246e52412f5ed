package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/decision"
	"github.com/fpang/ticket-decision-engine/internal/email"
	"github.com/fpang/ticket-decision-engine/internal/notify"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/vision"
)

type fakeStore struct {
	tickets  map[string]*ticket.Ticket
	getErr   error
	writeErr error

	written     map[string]ticket.DecisionRecord
	sent        map[string]ticket.EmailSent
	notifyFails map[string]string
}

func newStore(tickets ...*ticket.Ticket) *fakeStore {
	s := &fakeStore{
		tickets:     map[string]*ticket.Ticket{},
		written:     map[string]ticket.DecisionRecord{},
		sent:        map[string]ticket.EmailSent{},
		notifyFails: map[string]string{},
	}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *fakeStore) GetTicket(_ context.Context, id string) (*ticket.Ticket, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("dynamodb ticket %s: %w", id, ticket.ErrNotFound)
	}
	return t, nil
}

func (s *fakeStore) WriteDecision(_ context.Context, id string, rec ticket.DecisionRecord) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written[id] = rec
	return nil
}

func (s *fakeStore) MarkEmailSent(_ context.Context, id string, sent ticket.EmailSent) error {
	s.sent[id] = sent
	return nil
}

func (s *fakeStore) MarkNotificationFailed(_ context.Context, id, detail, _ string) error {
	s.notifyFails[id] = detail
	return nil
}

type fakePolicy struct {
	calls int
	err   error
}

func (p *fakePolicy) GetPolicy(context.Context, string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "Banners must be sharp and on brand.", nil
}

type fakeAssets struct{}

func (fakeAssets) AssetURL(_ context.Context, key string) (string, error) {
	if key == "broken" {
		return "", errors.New("s3 presign GetObject: denied")
	}
	return "https://uploads.example/" + key, nil
}

type fakeVision struct {
	calls   int
	outcome vision.Outcome
	links   []email.AssetLink
}

func (v *fakeVision) Analyze(_ context.Context, links []email.AssetLink, _ string) vision.Outcome {
	v.calls++
	v.links = links
	return v.outcome
}

type fakeNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Notification) (string, error) {
	if n.err != nil {
		return "", n.err
	}
	n.sent = append(n.sent, msg)
	return "msg-1", nil
}

type fakeEvents struct{ events []notify.DecisionEvent }

func (f *fakeEvents) EmitDecision(_ context.Context, ev notify.DecisionEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeTagger struct{ tags map[string]string }

func (f *fakeTagger) TagDecision(_ context.Context, key, _, outcome string) error {
	f.tags[key] = outcome
	return nil
}

type harness struct {
	store    *fakeStore
	policy   *fakePolicy
	vision   *fakeVision
	notifier *fakeNotifier
	events   *fakeEvents
	tagger   *fakeTagger
	engine   *Engine
}

func newHarness(tickets ...*ticket.Ticket) *harness {
	h := &harness{
		store:    newStore(tickets...),
		policy:   &fakePolicy{},
		vision:   &fakeVision{},
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
		tagger:   &fakeTagger{tags: map[string]string{}},
	}
	cfg := &config.Config{PolicyKey: "policy.md", Policy: config.DefaultPolicy()}
	h.engine = New(Deps{
		Tickets:  h.store,
		Policies: h.policy,
		Assets:   fakeAssets{},
		Vision:   h.vision,
		Notifier: h.notifier,
		Events:   h.events,
		Tagger:   h.tagger,
		Config:   cfg,
		Now:      func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) },
	})
	return h
}

func (h *harness) visionAnswer(raw string) {
	h.vision.outcome = vision.Outcome{
		Record:   analysis.NewNormalizer(config.DefaultPolicy()).Normalize(raw),
		Raw:      raw,
		Model:    "amazon.nova-lite-v1:0",
		Analyzed: 1,
	}
}

func banner() *ticket.Ticket {
	return &ticket.Ticket{
		ID:             "T-1",
		RequestType:    ticket.NewBanner,
		Title:          "Spring Sale",
		Description:    "Hero banner for the spring sale",
		TargetURL:      "https://logicart.com/sale",
		RequesterEmail: "ana@logicart.com",
		Assets:         []ticket.Asset{{S3Key: "T-1/hero.png", Filename: "hero.png"}},
	}
}

func TestProcessTicket_BrandAlignedBannerApproved(t *testing.T) {
	h := newHarness(banner())
	h.visionAnswer(`{"colors_detected":["#5754FF"],"visual_quality":{"score":0.6},
		"content_appropriateness":{"appropriate":true},"overall_compliance":{"confidence":0.6}}`)

	res := h.engine.ProcessTicket(context.Background(), "T-1", &UserContext{Email: "ops@logicart.com", UserID: "u-1"})

	require.NoError(t, res.Validate())
	assert.Equal(t, decision.Approve, res.Decision.Decision)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.Equal(t, "amazon.nova-lite-v1:0", res.ModelUsed)
	assert.Equal(t, "2026-10-17T09:30:00Z", res.ProcessedAt)
	assert.NotEmpty(t, res.AttemptID)

	assert.True(t, res.Persisted)
	rec := h.store.written["T-1"]
	assert.Equal(t, "APPROVE", rec.Decision)
	assert.Contains(t, rec.RawAnalysis, "#5754FF")

	assert.True(t, res.NotificationSent)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "New Request T-1 - Approved", h.notifier.sent[0].Subject)
	assert.Equal(t, "msg-1", h.store.sent["T-1"].MessageID)

	require.Len(t, h.events.events, 1)
	assert.Equal(t, "u-1", h.events.events[0].UserID)
	assert.Equal(t, "APPROVE", h.tagger.tags["T-1/hero.png"])

	require.Len(t, h.vision.links, 1)
	assert.Equal(t, "hero.png", h.vision.links[0].Name)
}

func TestProcessTicket_NonApprovedDomainRejectedBeforeVision(t *testing.T) {
	tk := banner()
	tk.TargetURL = "https://bit.ly/promo"
	h := newHarness(tk)

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)

	assert.Equal(t, decision.Reject, res.Decision.Decision)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.Contains(t, res.Reasons[0], "Non-approved URL domain")
	assert.Equal(t, 0, h.vision.calls)
	assert.Equal(t, 0, h.policy.calls)
	require.NoError(t, res.Validate())
}

func TestProcessTicket_URLGateCoversUnusualForms(t *testing.T) {
	for _, u := range []string{
		"//evil.com/sale",
		"javascript:alert(1)@logicart.com",
		"mailto:promo@logicart.com",
		"https://evil.com/%zz",
		"//evil.com/%zz",
		"http:evil.com",
		"https:///path",
	} {
		t.Run(u, func(t *testing.T) {
			tk := banner()
			tk.TargetURL = u
			h := newHarness(tk)
			h.visionAnswer(`{"colors_detected":["#5754FF"],"visual_quality":{"score":0.9},"content_appropriateness":{"appropriate":true}}`)

			res := h.engine.ProcessTicket(context.Background(), "T-1", nil)

			assert.Equal(t, decision.Reject, res.Decision.Decision)
			assert.GreaterOrEqual(t, res.Confidence, 0.9)
			assert.Equal(t, decision.MethodURLCheck, res.AnalysisMethod)
			assert.Equal(t, 0, h.vision.calls)
		})
	}
}

func TestProcessTicket_URLRejectEmailListsAssets(t *testing.T) {
	tk := banner()
	tk.TargetURL = "https://bit.ly/promo"
	h := newHarness(tk)

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)

	require.NotNil(t, res.Email)
	assert.Contains(t, res.Email.Body, "https://uploads.example/T-1/hero.png")
	assert.NotContains(t, res.Email.Body, "No images attached")
}

func TestCheckContract(t *testing.T) {
	e := newHarness().engine
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	valid := e.fallback.Feature(e.emailContext(banner(), nil, now))
	assert.Equal(t, valid, e.checkContract(valid, banner(), now))

	broken := decision.Decision{Decision: decision.Reject, Reasons: []string{"blurry"}, Confidence: 0.8}
	got := e.checkContract(broken, banner(), now)
	require.NoError(t, got.Validate())
	assert.Equal(t, decision.NeedsInfo, got.Decision)
	assert.True(t, got.ManualReviewRequired)
	assert.Contains(t, got.Summary, "requires an email")
}

func TestProcessTicket_LowQualityRejected(t *testing.T) {
	h := newHarness(banner())
	h.visionAnswer(`{"visual_quality":{"score":0.2},"content_appropriateness":{"appropriate":true}}`)

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)
	assert.Equal(t, decision.Reject, res.Decision.Decision)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.Contains(t, res.Reasons[0], "quality")
}

func TestProcessTicket_VisionTimeoutFallsBack(t *testing.T) {
	h := newHarness(banner())
	h.vision.outcome = vision.Outcome{
		Model: "amazon.nova-lite-v1:0",
		Err: &vision.UnavailableError{
			Model: "amazon.nova-lite-v1:0",
			Errs:  []error{fmt.Errorf("analyze hero.png: %w", context.DeadlineExceeded)},
		},
	}

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)

	require.NoError(t, res.Validate())
	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.True(t, res.FallbackAnalysis)
	assert.True(t, res.VisualAnalysisUnavailable)
	assert.Equal(t, decision.MethodFallback, res.AnalysisMethod)
	assert.True(t, res.Persisted)
	assert.True(t, h.store.written["T-1"].FallbackAnalysis)
}

func TestProcessTicket_FeatureRequestNeedsInfo(t *testing.T) {
	h := newHarness(&ticket.Ticket{ID: "F-1", RequestType: ticket.NewFeature, Title: "Wishlist"})

	res := h.engine.ProcessTicket(context.Background(), "F-1", nil)

	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.Equal(t, 1.0, res.Confidence)
	assert.False(t, res.FallbackAnalysis)
	assert.Equal(t, 0, h.vision.calls)
	assert.Empty(t, h.tagger.tags)
	require.NoError(t, res.Validate())
}

func TestProcessTicket_UnknownRequestType(t *testing.T) {
	h := newHarness(&ticket.Ticket{ID: "X-1", RequestType: "COPY_CHANGE"})

	res := h.engine.ProcessTicket(context.Background(), "X-1", nil)
	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.Equal(t, 0.0, res.Confidence)
	assert.True(t, res.ManualReviewRequired)
	assert.Equal(t, "COPY_CHANGE", res.RequestType)
}

func TestProcessTicket_MissingTicket(t *testing.T) {
	h := newHarness()

	res := h.engine.ProcessTicket(context.Background(), "nope", nil)

	require.NoError(t, res.Validate())
	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.True(t, res.ManualReviewRequired)
	assert.Contains(t, res.Summary, "Database access error")
	assert.False(t, res.Persisted)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.events.events)
}

func TestProcessTicket_PolicyUnavailable(t *testing.T) {
	h := newHarness(banner())
	h.policy.err = errors.New("s3 GetObject policies/policy.md: AccessDenied")

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)

	assert.True(t, res.ManualReviewRequired)
	assert.Contains(t, res.Summary, "Unable to access required policy/resources")
	assert.True(t, res.Persisted)
	assert.True(t, res.NotificationSent)
	assert.Equal(t, 0, h.vision.calls)
}

func TestProcessTicket_NoResolvableImages(t *testing.T) {
	tk := banner()
	tk.Assets = []ticket.Asset{{S3Key: "broken"}, {S3Key: ""}}
	h := newHarness(tk)

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)
	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.Equal(t, []string{decision.ReasonNoImage}, res.Reasons)
	assert.Equal(t, decision.MethodVisualFocus, res.AnalysisMethod)
	assert.Equal(t, 0, h.vision.calls)
}

func TestProcessTicket_PersistFailureKeepsDecision(t *testing.T) {
	h := newHarness(banner())
	h.store.writeErr = errors.New("dynamodb UpdateItem ticket T-1: ProvisionedThroughputExceededException")
	h.visionAnswer(`{"colors_detected":["#5754FF"],"visual_quality":{"score":0.9},"content_appropriateness":{"appropriate":true}}`)

	res := h.engine.ProcessTicket(context.Background(), "T-1", nil)
	assert.False(t, res.Persisted)
	assert.Equal(t, decision.Approve, res.Decision.Decision)
	assert.True(t, res.NotificationSent)
}

func TestProcessTicket_NotificationFailure(t *testing.T) {
	h := newHarness(&ticket.Ticket{ID: "F-2", RequestType: ticket.NewFeature})
	h.notifier.err = errors.New("sns Publish ticket F-2: AuthorizationError")

	res := h.engine.ProcessTicket(context.Background(), "F-2", nil)

	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.False(t, res.NotificationSent)
	assert.True(t, res.ManualNotificationRequired)
	assert.Equal(t, "Decision completed but notification failed: sns Publish ticket F-2: AuthorizationError", res.NotificationError)
	assert.Equal(t, res.NotificationError, h.store.notifyFails["F-2"])
}

func TestProcessTicket_WithoutOptionalCollaborators(t *testing.T) {
	h := newHarness(&ticket.Ticket{ID: "F-3", RequestType: ticket.NewFeature})
	h.engine.deps.Notifier = nil
	h.engine.deps.Events = nil
	h.engine.deps.Tagger = nil

	res := h.engine.ProcessTicket(context.Background(), "F-3", nil)
	assert.True(t, res.Persisted)
	assert.False(t, res.NotificationSent)
	assert.False(t, res.ManualNotificationRequired)
}

func TestResultJSONFlattensDecision(t *testing.T) {
	h := newHarness(&ticket.Ticket{ID: "F-1", RequestType: ticket.NewFeature})
	res := h.engine.ProcessTicket(context.Background(), "F-1", &UserContext{Email: "a@b.c", UserID: "u"})

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "NEEDS_INFO", m["decision"])
	assert.Equal(t, "F-1", m["ticket_id"])
	assert.Equal(t, true, m["ai_analysis"])
	assert.Equal(t, "u", m["user_context"].(map[string]any)["userId"])
	assert.Contains(t, m, "email")
}

func TestEvaluate(t *testing.T) {
	e := newHarness().engine

	res := e.Evaluate(Evaluation{Ticket: banner(), RawAnalysis: "Mostly #5754FF with a clear logo, looks fine"})
	require.NoError(t, res.Validate())
	assert.Equal(t, decision.Approve, res.Decision.Decision)

	res = e.Evaluate(Evaluation{Ticket: banner(), VisionErr: errors.New("ThrottlingException: Rate exceeded")})
	assert.Equal(t, decision.NeedsInfo, res.Decision.Decision)
	assert.True(t, res.FallbackAnalysis)

	res = e.Evaluate(Evaluation{Ticket: banner()})
	assert.Equal(t, []string{decision.ReasonNoImage}, res.Reasons)

	res = e.Evaluate(Evaluation{})
	assert.True(t, res.ManualReviewRequired)
}
