package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when no item exists for a ticket ID.
var ErrNotFound = errors.New("ticket not found")

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DecisionRecord is the agentDecision map persisted on a ticket.
type DecisionRecord struct {
	Decision         string   `dynamodbav:"decision"`
	Reasons          []string `dynamodbav:"reasons"`
	Confidence       float64  `dynamodbav:"confidence"`
	ProcessedAt      string   `dynamodbav:"processedAt"`
	ModelUsed        string   `dynamodbav:"modelUsed"`
	AnalysisMethod   string   `dynamodbav:"analysisMethod"`
	FallbackAnalysis bool     `dynamodbav:"fallbackAnalysis"`

	// RawAnalysis is the unparsed model output, stored zstd-compressed in a
	// separate attribute when present.
	RawAnalysis string `dynamodbav:"-"`
}

// EmailSent records a successful notification.
type EmailSent struct {
	SentAt    string `dynamodbav:"sentAt"`
	Subject   string `dynamodbav:"subject"`
	Recipient string `dynamodbav:"recipient"`
	Status    string `dynamodbav:"status"`
	MessageID string `dynamodbav:"messageId,omitempty"`
}

// item mirrors the stored ticket attributes that unmarshal directly.
// pageUrls and assets vary in shape and are decoded by hand.
type item struct {
	TicketID         string `dynamodbav:"ticketId"`
	Title            string `dynamodbav:"title"`
	Description      string `dynamodbav:"description"`
	ChangeType       string `dynamodbav:"changeType"`
	PageArea         string `dynamodbav:"pageArea"`
	TargetURL        string `dynamodbav:"targetUrl"`
	TargetLaunchDate string `dynamodbav:"targetLaunchDate"`
	Urgency          string `dynamodbav:"urgency"`
	RequesterEmail   string `dynamodbav:"requesterEmail"`
	RequesterName    string `dynamodbav:"requesterName"`
	Department       string `dynamodbav:"department"`
	Language         string `dynamodbav:"language"`
	CopyEn           string `dynamodbav:"copyEn"`
	CopyZh           string `dynamodbav:"copyZh"`
	Notes            string `dynamodbav:"notes"`
	Status           string `dynamodbav:"status"`
	CreatedAt        string `dynamodbav:"createdAt"`
}

// DynamoStore reads tickets and writes decisions to the tickets table,
// keyed by ticketId.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// TableName returns the backing table name.
func (s *DynamoStore) TableName() string {
	return s.tableName
}

func ticketKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ticketId": &types.AttributeValueMemberS{Value: id},
	}
}

// GetTicket loads and normalizes a ticket.
func (s *DynamoStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("validation: ticket id is required")
	}
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       ticketKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem ticket %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("dynamodb ticket %s: %w", id, ErrNotFound)
	}
	t, err := decodeTicket(result.Item)
	if err != nil {
		return nil, fmt.Errorf("dynamodb unmarshal ticket %s: %w", id, err)
	}
	if t.ID == "" {
		t.ID = id
	}
	log.Debug().Str("ticketId", id).Str("requestType", string(t.RequestType)).Int("assets", len(t.Assets)).Msg("Ticket loaded")
	return t, nil
}

func decodeTicket(av map[string]types.AttributeValue) (*Ticket, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, err
	}
	assets, err := decodeAssets(av["assets"])
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	t := &Ticket{
		ID:             it.TicketID,
		RequestType:    RequestType(it.ChangeType),
		Title:          it.Title,
		Description:    it.Description,
		PageArea:       it.PageArea,
		PageURLs:       decodeStrings(av["pageUrls"]),
		TargetURL:      it.TargetURL,
		LaunchDate:     it.TargetLaunchDate,
		Urgency:        it.Urgency,
		RequesterEmail: it.RequesterEmail,
		RequesterName:  it.RequesterName,
		Department:     it.Department,
		Language:       it.Language,
		CopyEN:         it.CopyEn,
		CopyZH:         it.CopyZh,
		Notes:          it.Notes,
		Status:         it.Status,
		CreatedAt:      it.CreatedAt,
		Assets:         assets,
	}
	t.ApplyDefaults()
	return t, nil
}

// decodeStrings accepts a list, a string set, or a single string.
func decodeStrings(av types.AttributeValue) []string {
	switch v := av.(type) {
	case *types.AttributeValueMemberSS:
		return append([]string(nil), v.Value...)
	case *types.AttributeValueMemberL:
		var out []string
		for _, e := range v.Value {
			if s, ok := e.(*types.AttributeValueMemberS); ok {
				out = append(out, s.Value)
			}
		}
		return out
	case *types.AttributeValueMemberS:
		if v.Value != "" {
			return []string{v.Value}
		}
	}
	return nil
}

// decodeAssets accepts a list of maps or a JSON-encoded string.
func decodeAssets(av types.AttributeValue) ([]Asset, error) {
	var out []Asset
	switch v := av.(type) {
	case nil, *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberL:
		if err := attributevalue.Unmarshal(v, &out); err != nil {
			return nil, err
		}
	case *types.AttributeValueMemberS:
		if strings.TrimSpace(v.Value) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(v.Value), &out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", av)
	}
	return out, nil
}

// WriteDecision stores the decision map, status and update time on the ticket.
func (s *DynamoStore) WriteDecision(ctx context.Context, id string, rec DecisionRecord) error {
	decision, err := attributevalue.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	update := "SET agentDecision = :d, updatedAt = :u, #status = :s"
	values := map[string]types.AttributeValue{
		":d": decision,
		":u": &types.AttributeValueMemberS{Value: rec.ProcessedAt},
		":s": &types.AttributeValueMemberS{Value: StatusFor(rec.Decision)},
	}
	if rec.RawAnalysis != "" {
		update += ", rawAnalysis = :r"
		values[":r"] = &types.AttributeValueMemberB{Value: CompressRaw(rec.RawAnalysis)}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       ticketKey(id),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("dynamodb UpdateItem ticket %s decision: %w", id, err)
	}
	log.Debug().Str("ticketId", id).Str("decision", rec.Decision).Msg("Decision persisted")
	return nil
}

// MarkEmailSent records the notification that went out for the ticket.
func (s *DynamoStore) MarkEmailSent(ctx context.Context, id string, sent EmailSent) error {
	av, err := attributevalue.Marshal(sent)
	if err != nil {
		return fmt.Errorf("marshal emailSent: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ticketKey(id),
		UpdateExpression: aws.String("SET emailSent = :e, notificationStatus = :n, updatedAt = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": av,
			":n": &types.AttributeValueMemberS{Value: "sent"},
			":u": &types.AttributeValueMemberS{Value: sent.SentAt},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb UpdateItem ticket %s emailSent: %w", id, err)
	}
	return nil
}

// MarkNotificationFailed flags the ticket for manual follow-up.
func (s *DynamoStore) MarkNotificationFailed(ctx context.Context, id, detail, at string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ticketKey(id),
		UpdateExpression: aws.String("SET notificationStatus = :n, notificationError = :e, updatedAt = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: "failed"},
			":e": &types.AttributeValueMemberS{Value: detail},
			":u": &types.AttributeValueMemberS{Value: at},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb UpdateItem ticket %s notificationStatus: %w", id, err)
	}
	return nil
}

var (
	zEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	zDecoder, _ = zstd.NewReader(nil)
)

// CompressRaw zstd-compresses raw model output for storage.
func CompressRaw(raw string) []byte {
	return zEncoder.EncodeAll([]byte(raw), nil)
}

// DecompressRaw reverses CompressRaw.
func DecompressRaw(b []byte) (string, error) {
	out, err := zDecoder.DecodeAll(b, nil)
	if err != nil {
		return "", fmt.Errorf("zstd decode: %w", err)
	}
	return string(out), nil
}
