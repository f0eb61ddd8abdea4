package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmBatchLimit is the largest batch SendEach accepts.
const fcmBatchLimit = 500

type fcmSender interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCMConfig configures the Firebase Cloud Messaging gateway.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FCMGateway delivers messages through Firebase Cloud Messaging.
type FCMGateway struct {
	client fcmSender
}

// NewFCMGateway initialises a Firebase app and messaging client.
func NewFCMGateway(ctx context.Context, cfg FCMConfig) (*FCMGateway, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	var conf *firebase.Config
	if cfg.ProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("push: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: init messaging client: %w", err)
	}
	return &FCMGateway{client: client}, nil
}

// SendBatch implements Gateway.
func (g *FCMGateway) SendBatch(ctx context.Context, messages []Message) ([]Result, error) {
	results := make([]Result, 0, len(messages))

	for start := 0; start < len(messages); start += fcmBatchLimit {
		end := min(start+fcmBatchLimit, len(messages))

		payload := make([]*messaging.Message, 0, end-start)
		for _, msg := range messages[start:end] {
			payload = append(payload, toFCMMessage(msg))
		}

		resp, err := g.client.SendEach(ctx, payload)
		if err != nil {
			if len(results) == 0 {
				return nil, &GatewayError{StatusCode: httpStatus(err), Err: err}
			}
			// Earlier chunks were delivered, so report this chunk per message.
			failure := ResultFromError(&GatewayError{StatusCode: httpStatus(err), Err: err})
			for range payload {
				results = append(results, failure)
			}
			continue
		}

		for i := range payload {
			if i >= len(resp.Responses) || resp.Responses[i] == nil {
				results = append(results, Result{Outcome: OutcomeTransient, Error: "missing provider response"})
				continue
			}
			results = append(results, fromSendResponse(resp.Responses[i]))
		}
	}
	return results, nil
}

func toFCMMessage(msg Message) *messaging.Message {
	out := &messaging.Message{
		Token: msg.Token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	switch msg.Platform {
	case "android":
		out.Android = &messaging.AndroidConfig{Priority: "high"}
	case "ios":
		out.APNS = &messaging.APNSConfig{Headers: map[string]string{"apns-priority": "10"}}
	}
	return out
}

func fromSendResponse(resp *messaging.SendResponse) Result {
	if resp.Success {
		return Result{Outcome: OutcomeSent, MessageID: resp.MessageID, StatusCode: http.StatusOK}
	}
	err := resp.Error
	if err == nil {
		err = errors.New("unknown provider error")
	}
	return Result{
		Outcome:    classifyFCMError(err),
		StatusCode: httpStatus(err),
		Error:      err.Error(),
	}
}

// classifyFCMError maps a per-message error. Only UNREGISTERED and INVALID_ARGUMENT
// name the token itself; a bare 404 usually means a wrong project id, so it is retried
// instead of deactivating the device.
func classifyFCMError(err error) Outcome {
	switch {
	case messaging.IsUnregistered(err), messaging.IsInvalidArgument(err):
		return OutcomeInvalidToken
	case httpStatus(err) == http.StatusNotFound:
		return OutcomeTransient
	case messaging.IsSenderIDMismatch(err), messaging.IsThirdPartyAuthError(err), messaging.IsMismatchedCredential(err):
		return OutcomeRejected
	case messaging.IsUnavailable(err), messaging.IsInternal(err), messaging.IsQuotaExceeded(err):
		return OutcomeTransient
	}
	return outcomeForStatus(httpStatus(err))
}

func httpStatus(err error) int {
	if resp := errorutils.HTTPResponse(err); resp != nil {
		return resp.StatusCode
	}
	return 0
}
