package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	received *sqs.ReceiveMessageInput
	messages []types.Message
	sendErr  error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = in
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_SendCarriesJobAttributes(t *testing.T) {
	api := &fakeSQS{}
	q := NewSQSQueue(api, "http://localhost:4566/000000000000/suggestions")

	require.NoError(t, q.Send(context.Background(), Job{UserID: "user-1", Trigger: TriggerBatchUpload}))
	require.Len(t, api.sent, 1)
	in := api.sent[0]

	assert.Equal(t, "user-1", aws.ToString(in.MessageAttributes[attrUserID].StringValue))
	assert.Equal(t, "BATCH_UPLOAD", aws.ToString(in.MessageAttributes[attrTrigger].StringValue))
	assert.Nil(t, in.MessageGroupId)
	assert.Nil(t, in.MessageDeduplicationId)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, TriggerBatchUpload, job.Trigger)
}

func TestSQSQueue_FIFOGroupsByUser(t *testing.T) {
	api := &fakeSQS{}
	q := NewSQSQueue(api, "https://sqs.eu-west-1.amazonaws.com/123456789012/suggestions.fifo")

	require.NoError(t, q.Send(context.Background(), Job{ID: "job-7", UserID: "user-2", Trigger: TriggerNewRecord}))
	require.Len(t, api.sent, 1)
	assert.Equal(t, "user-2", aws.ToString(api.sent[0].MessageGroupId))
	assert.Equal(t, "job-7", aws.ToString(api.sent[0].MessageDeduplicationId))
}

func TestSQSQueue_SendError(t *testing.T) {
	q := NewSQSQueue(&fakeSQS{sendErr: errors.New("AccessDenied")}, "http://localhost:4566/q")
	err := q.Send(context.Background(), Job{UserID: "user-1", Trigger: TriggerManual})
	assert.ErrorContains(t, err, "AccessDenied")
	assert.ErrorContains(t, err, "user-1")
}

func TestSQSQueue_ReceiveReadsAttributes(t *testing.T) {
	api := &fakeSQS{messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"id":"job-1"}`),
		ReceiptHandle: aws.String("r-1"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrUserID:  stringAttribute("user-3"),
			attrTrigger: stringAttribute("PROFILE_UPDATE"),
		},
	}, {
		MessageId:     aws.String("m-2"),
		Body:          aws.String(`{}`),
		ReceiptHandle: aws.String("r-2"),
	}}}
	q := NewSQSQueue(api, "http://localhost:4566/q")

	msgs, err := q.Receive(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{attrUserID, attrTrigger}, api.received.MessageAttributeNames)
	assert.Equal(t, int32(20), api.received.WaitTimeSeconds)

	require.Len(t, msgs, 2)
	assert.Equal(t, "user-3", msgs[0].UserID)
	assert.Equal(t, TriggerProfileUpdate, msgs[0].Trigger)
	assert.Empty(t, msgs[1].UserID)
}
