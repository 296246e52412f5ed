package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNotify(t *testing.T) {
	f := &fakeSNS{}
	id, err := NewPublisher(f, "arn:aws:sns:us-east-1:1:decisions").Notify(context.Background(), Notification{
		TicketID:       "T-1",
		RequesterEmail: "ana@logicart.com",
		Decision:       "APPROVE",
		Subject:        strings.Repeat("s", 150),
		Body:           "Approved.",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	assert.Equal(t, "json", aws.ToString(f.in.MessageStructure))
	assert.Len(t, aws.ToString(f.in.Subject), MaxSubjectLen)

	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(f.in.Message)), &msg))
	assert.Equal(t, map[string]string{"default": "Approved.", "email": "Approved."}, msg)

	assert.Equal(t, "APPROVE", aws.ToString(f.in.MessageAttributes["decision"].StringValue))
	assert.Equal(t, "T-1", aws.ToString(f.in.MessageAttributes["ticketId"].StringValue))
	assert.Equal(t, "ana@logicart.com", aws.ToString(f.in.MessageAttributes["requesterEmail"].StringValue))
}

func TestNotify_OmitsEmptyRequester(t *testing.T) {
	f := &fakeSNS{}
	_, err := NewPublisher(f, "arn").Notify(context.Background(), Notification{TicketID: "T-1", Decision: "REJECT"})
	require.NoError(t, err)
	assert.NotContains(t, f.in.MessageAttributes, "requesterEmail")
}

func TestNotify_ErrorNamesService(t *testing.T) {
	_, err := NewPublisher(&fakeSNS{err: errors.New("AuthorizationError")}, "arn").Notify(context.Background(), Notification{TicketID: "T-2"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "sns Publish ticket T-2"))
}

func TestTruncateSubject(t *testing.T) {
	assert.Equal(t, "short", TruncateSubject("short"))
	long := strings.Repeat("新", 120)
	got := TruncateSubject(long)
	assert.Equal(t, MaxSubjectLen, len([]rune(got)))
}

type fakeBus struct {
	in  *eventbridge.PutEventsInput
	out *eventbridge.PutEventsOutput
	err error
}

func (f *fakeBus) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEmitDecision(t *testing.T) {
	f := &fakeBus{}
	err := NewEmitter(f, "decisions").EmitDecision(context.Background(), DecisionEvent{
		TicketID: "T-1", Decision: "NEEDS_INFO", Confidence: 0.6, Reasons: []string{"r"},
	})
	require.NoError(t, err)

	entry := f.in.Entries[0]
	assert.Equal(t, "decisions", aws.ToString(entry.EventBusName))
	assert.Equal(t, EventSource, aws.ToString(entry.Source))
	assert.Equal(t, DetailTypeDecided, aws.ToString(entry.DetailType))

	var ev DecisionEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &ev))
	assert.Equal(t, "T-1", ev.TicketID)
	_, err = uuid.Parse(ev.EventID)
	assert.NoError(t, err)
}

func TestEmitDecision_FailedEntry(t *testing.T) {
	f := &fakeBus{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{{
			ErrorCode:    aws.String("InternalFailure"),
			ErrorMessage: aws.String("try again"),
		}},
	}}
	err := NewEmitter(f, "bus").EmitDecision(context.Background(), DecisionEvent{TicketID: "T-1", EventID: "fixed"})
	assert.ErrorContains(t, err, "InternalFailure - try again")
}
