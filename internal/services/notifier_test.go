package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSESAlertNotifier_SendsBlockedAlert(t *testing.T) {
	var sent *ses.SendEmailInput
	client := &services.MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sent = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
	n := services.NewSESAlertNotifierWithClient(client, "alerts@example.com", []string{"oncall@example.com"}, discardLogger())

	err := n.NotifySecurityEvent(context.Background(), &models.SecurityEvent{
		ID:        uuid.New(),
		Type:      models.SecurityEventBlocked,
		Subject:   testIP,
		Timestamp: businessTime,
		Detail:    models.EventDetail{"consecutive_failures": 10},
	})

	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "alerts@example.com", aws.ToString(sent.Source))
	assert.Equal(t, []string{"oncall@example.com"}, sent.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(sent.Message.Subject.Data), "IP 10.0.0.1 blocked")
	assert.Contains(t, aws.ToString(sent.Message.Body.Text.Data), "consecutive_failures: 10")
}

func TestSESAlertNotifier_HighRiskSubject(t *testing.T) {
	var subject string
	client := &services.MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			subject = aws.ToString(params.Message.Subject.Data)
			return &ses.SendEmailOutput{}, nil
		},
	}
	n := services.NewSESAlertNotifierWithClient(client, "alerts@example.com", []string{"oncall@example.com"}, discardLogger())
	deviceID := uuid.New().String()

	require.NoError(t, n.NotifySecurityEvent(context.Background(), &models.SecurityEvent{
		ID:      uuid.New(),
		Type:    models.SecurityEventHighRiskFlagged,
		Subject: deviceID,
	}))

	assert.Contains(t, subject, deviceID)
	assert.Contains(t, subject, "pending review")
}

func TestSESAlertNotifier_Skips(t *testing.T) {
	tests := []struct {
		name       string
		recipients []string
		eventType  models.SecurityEventType
	}{
		{"unblocked events", []string{"oncall@example.com"}, models.SecurityEventUnblocked},
		{"no recipients", nil, models.SecurityEventBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			client := &services.MockSESClient{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					called = true
					return &ses.SendEmailOutput{}, nil
				},
			}
			n := services.NewSESAlertNotifierWithClient(client, "alerts@example.com", tt.recipients, discardLogger())

			err := n.NotifySecurityEvent(context.Background(), &models.SecurityEvent{ID: uuid.New(), Type: tt.eventType, Subject: testIP})

			assert.NoError(t, err)
			assert.False(t, called)
		})
	}
}

func TestSESAlertNotifier_SendError(t *testing.T) {
	client := &services.MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	n := services.NewSESAlertNotifierWithClient(client, "alerts@example.com", []string{"oncall@example.com"}, discardLogger())

	err := n.NotifySecurityEvent(context.Background(), &models.SecurityEvent{ID: uuid.New(), Type: models.SecurityEventBlocked, Subject: testIP})

	assert.Error(t, err)
}

func TestLogAlertNotifier_NeverFails(t *testing.T) {
	n := services.NewLogAlertNotifier(discardLogger())

	for _, typ := range []models.SecurityEventType{models.SecurityEventBlocked, models.SecurityEventUnblocked, models.SecurityEventHighRiskFlagged} {
		assert.NoError(t, n.NotifySecurityEvent(context.Background(), &models.SecurityEvent{ID: uuid.New(), Type: typ, Subject: testIP}))
	}
}
