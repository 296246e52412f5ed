package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event routing fields.
const (
	EventSource       = "logiccart.decision-engine"
	DetailTypeDecided = "DecisionMade"
)

// DecisionEvent is the detail of a DecisionMade event.
type DecisionEvent struct {
	EventID          string   `json:"eventId"`
	TicketID         string   `json:"ticketId"`
	RequestType      string   `json:"requestType"`
	Decision         string   `json:"decision"`
	Confidence       float64  `json:"confidence"`
	Reasons          []string `json:"reasons"`
	AnalysisMethod   string   `json:"analysisMethod"`
	FallbackAnalysis bool     `json:"fallbackAnalysis"`
	ManualReview     bool     `json:"manualReview"`
	ModelUsed        string   `json:"modelUsed"`
	ProcessedAt      string   `json:"processedAt"`
	UserID           string   `json:"userId,omitempty"`
}

// PutEventsAPI is the subset of the EventBridge client used here.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Emitter publishes decision events to an event bus.
type Emitter struct {
	client  PutEventsAPI
	busName string
}

// NewEmitter returns an Emitter for busName.
func NewEmitter(client PutEventsAPI, busName string) *Emitter {
	return &Emitter{client: client, busName: busName}
}

// EmitDecision publishes event, assigning an event ID when it has none.
func (e *Emitter) EmitDecision(ctx context.Context, event DecisionEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal DecisionEvent: %w", err)
	}

	result, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{{
			EventBusName: aws.String(e.busName),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(DetailTypeDecided),
			Detail:       aws.String(string(detail)),
		}},
	})
	if err != nil {
		log.Error().Err(err).Str("ticketId", event.TicketID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("eventbridge PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("ticketId", event.TicketID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("eventbridge PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("ticketId", event.TicketID).Str("eventId", event.EventID).Msg("DecisionMade emitted to EventBridge")
	return nil
}
