package push

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	batches [][]*messaging.Message
	resp    func(batch []*messaging.Message) (*messaging.BatchResponse, error)
}

func (f *fakeSender) SendEach(_ context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error) {
	f.batches = append(f.batches, messages)
	return f.resp(messages)
}

func TestFCMGatewayMapsPerMessageResults(t *testing.T) {
	sender := &fakeSender{resp: func(batch []*messaging.Message) (*messaging.BatchResponse, error) {
		return &messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "projects/p/messages/1"},
				{Success: false, Error: errors.New("connection reset")},
			},
		}, nil
	}}
	gateway := &FCMGateway{client: sender}

	results, err := gateway.SendBatch(context.Background(), []Message{
		{Token: "tok-1", Platform: "android", Title: "Help", Body: "Nearby", Data: map[string]string{"emergency_id": "e1"}},
		{Token: "tok-2", Platform: "ios"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, OutcomeSent, results[0].Outcome)
	require.Equal(t, "projects/p/messages/1", results[0].MessageID)
	require.NoError(t, results[0].Err())

	require.Equal(t, OutcomeTransient, results[1].Outcome)
	require.False(t, results[1].Permanent())
	var transient *TransientDeliveryError
	require.ErrorAs(t, results[1].Err(), &transient)

	require.Len(t, sender.batches, 1)
	sent := sender.batches[0]
	require.Equal(t, "tok-1", sent[0].Token)
	require.Equal(t, "Help", sent[0].Notification.Title)
	require.Equal(t, "e1", sent[0].Data["emergency_id"])
	require.NotNil(t, sent[0].Android)
	require.NotNil(t, sent[1].APNS)
}

func TestFCMGatewayReportsBatchFailure(t *testing.T) {
	sender := &fakeSender{resp: func([]*messaging.Message) (*messaging.BatchResponse, error) {
		return nil, errors.New("dial tcp: timeout")
	}}
	gateway := &FCMGateway{client: sender}

	results, err := gateway.SendBatch(context.Background(), []Message{{Token: "tok"}})
	require.Nil(t, results)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, OutcomeTransient, ResultFromError(err).Outcome)
}

func TestFCMGatewayChunksLargeBatches(t *testing.T) {
	sender := &fakeSender{resp: func(batch []*messaging.Message) (*messaging.BatchResponse, error) {
		responses := make([]*messaging.SendResponse, len(batch))
		for i := range batch {
			responses[i] = &messaging.SendResponse{Success: true, MessageID: "ok"}
		}
		return &messaging.BatchResponse{SuccessCount: len(batch), Responses: responses}, nil
	}}
	gateway := &FCMGateway{client: sender}

	messages := make([]Message, fcmBatchLimit+3)
	results, err := gateway.SendBatch(context.Background(), messages)
	require.NoError(t, err)
	require.Len(t, results, fcmBatchLimit+3)
	require.Len(t, sender.batches, 2)
	require.Len(t, sender.batches[1], 3)
}

func TestResultFromErrorClassifiesStatus(t *testing.T) {
	cases := []struct {
		status   int
		expected Outcome
	}{
		{0, OutcomeTransient},
		{http.StatusInternalServerError, OutcomeTransient},
		{http.StatusServiceUnavailable, OutcomeTransient},
		{http.StatusTooManyRequests, OutcomeTransient},
		{http.StatusBadRequest, OutcomeRejected},
		{http.StatusGone, OutcomeInvalidToken},
		{http.StatusUnauthorized, OutcomeTransient},
		{http.StatusForbidden, OutcomeTransient},
		{http.StatusNotFound, OutcomeTransient},
	}

	for _, tc := range cases {
		result := ResultFromError(&GatewayError{StatusCode: tc.status, Err: errors.New("failure")})
		require.Equal(t, tc.expected, result.Outcome, "status %d", tc.status)
		require.Equal(t, tc.status, result.StatusCode)
	}
}

func TestPermanentResultError(t *testing.T) {
	err := Result{Outcome: OutcomeInvalidToken, StatusCode: http.StatusNotFound, Error: "unregistered"}.Err()

	var permanent *PermanentDeliveryError
	require.ErrorAs(t, err, &permanent)
	require.True(t, permanent.InvalidToken)
	require.Contains(t, err.Error(), "unregistered")
}

func TestLogGatewayReportsSent(t *testing.T) {
	results, err := NewLogGateway().SendBatch(context.Background(), []Message{{Token: "a"}, {Token: "b"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		require.Equal(t, OutcomeSent, result.Outcome)
		require.NotEmpty(t, result.MessageID)
	}
}
