package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AlertNotifier forwards security events to operators
type AlertNotifier interface {
	NotifySecurityEvent(ctx context.Context, ev *models.SecurityEvent) error
}

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertNotifier emails blocked and high-risk events via AWS SES
type SESAlertNotifier struct {
	client      SESClient
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESAlertNotifier creates a notifier from the default AWS config chain
func NewSESAlertNotifier(region, fromAddress string, recipients []string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESAlertNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

// NewSESAlertNotifierWithClient creates a notifier around an existing client
func NewSESAlertNotifierWithClient(client SESClient, fromAddress string, recipients []string, logger *slog.Logger) *SESAlertNotifier {
	return &SESAlertNotifier{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      resolveLogger(logger),
	}
}

// NotifySecurityEvent sends an alert for blocked and high_risk_flagged
// events. Unblocks are operator actions and are not mailed.
func (n *SESAlertNotifier) NotifySecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	if ev.Type == models.SecurityEventUnblocked || len(n.recipients) == 0 {
		return nil
	}

	subject, body := alertContent(ev)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("security alert sent",
		slog.String("event_id", ev.ID.String()),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func alertContent(ev *models.SecurityEvent) (string, string) {
	var subject string
	switch ev.Type {
	case models.SecurityEventBlocked:
		subject = fmt.Sprintf("[enrollguard] IP %s blocked", ev.Subject)
	case models.SecurityEventHighRiskFlagged:
		subject = fmt.Sprintf("[enrollguard] Device %s pending review", ev.Subject)
	default:
		subject = fmt.Sprintf("[enrollguard] %s: %s", ev.Type, ev.Subject)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event:   %s\n", ev.Type)
	fmt.Fprintf(&b, "Subject: %s\n", ev.Subject)
	fmt.Fprintf(&b, "Time:    %s\n", ev.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	for k, v := range ev.Detail {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	b.WriteString("\nThis is an automated message. Please do not reply to this email.\n")
	return subject, b.String()
}

// LogAlertNotifier is used when SES is not configured
type LogAlertNotifier struct {
	logger *slog.Logger
}

// NewLogAlertNotifier creates a new LogAlertNotifier
func NewLogAlertNotifier(logger *slog.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{logger: resolveLogger(logger)}
}

func (n *LogAlertNotifier) NotifySecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	if ev.Type == models.SecurityEventUnblocked {
		return nil
	}
	n.logger.WarnContext(ctx, "security alert",
		slog.String("event_type", string(ev.Type)),
		slog.String("subject", ev.Subject))
	return nil
}
