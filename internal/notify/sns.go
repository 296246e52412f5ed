// Package notify delivers decision notifications over SNS and publishes
// decision events to EventBridge.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog/log"
)

// MaxSubjectLen is the SNS subject limit.
const MaxSubjectLen = 100

// Notification is one requester message.
type Notification struct {
	TicketID       string
	RequesterEmail string
	Decision       string
	Subject        string
	Body           string
}

// PublishAPI is the subset of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends notifications to an SNS topic with email subscribers.
type Publisher struct {
	client   PublishAPI
	topicARN string
}

// NewPublisher returns a Publisher for topicARN.
func NewPublisher(client PublishAPI, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// Notify publishes n and returns the SNS message ID. Subscribers can filter
// on the decision, ticketId and requesterEmail attributes.
func (p *Publisher) Notify(ctx context.Context, n Notification) (string, error) {
	message, err := json.Marshal(map[string]string{
		"default": n.Body,
		"email":   n.Body,
	})
	if err != nil {
		return "", fmt.Errorf("sns marshal message: %w", err)
	}

	attrs := map[string]snstypes.MessageAttributeValue{
		"decision": stringAttr(n.Decision),
		"ticketId": stringAttr(n.TicketID),
	}
	if n.RequesterEmail != "" {
		attrs["requesterEmail"] = stringAttr(n.RequesterEmail)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Subject:           aws.String(TruncateSubject(n.Subject)),
		Message:           aws.String(string(message)),
		MessageStructure:  aws.String("json"),
		MessageAttributes: attrs,
	})
	if err != nil {
		log.Error().Err(err).Str("ticketId", n.TicketID).Str("topicArn", p.topicARN).Msg("SNS Publish failed")
		return "", fmt.Errorf("sns Publish ticket %s: %w", n.TicketID, err)
	}

	id := aws.ToString(out.MessageId)
	log.Info().
		Str("ticketId", n.TicketID).
		Str("decision", n.Decision).
		Str("messageId", id).
		Msg("Notification published")
	return id, nil
}

// TruncateSubject cuts s to MaxSubjectLen characters without splitting a rune.
func TruncateSubject(s string) string {
	if utf8.RuneCountInString(s) <= MaxSubjectLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxSubjectLen])
}

func stringAttr(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
