// internal/billing/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/policy"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

// EmailSender is the SES surface used for tenant notices.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// TopicPublisher is the SNS surface used for operator alerts.
type TopicPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Service delivers post-reconciliation notifications: email to the
// workspace owner on status changes, and an ops-topic alert when the drift
// auditor corrects a workspace. Delivery is best-effort; failures are
// logged and never propagate back into reconciliation.
type Service struct {
	email       EmailSender
	topics      TopicPublisher
	catalog     *catalog.Catalog
	fromAddress string
	opsTopicARN string
	log         logger.Logger
}

func NewService(email EmailSender, topics TopicPublisher, cat *catalog.Catalog,
	fromAddress, opsTopicARN string, log logger.Logger) *Service {
	return &Service{
		email:       email,
		topics:      topics,
		catalog:     cat,
		fromAddress: fromAddress,
		opsTopicARN: opsTopicARN,
		log:         log,
	}
}

// StatusChanged emails the workspace owner about the new subscription state.
func (s *Service) StatusChanged(ctx context.Context, ws *models.Workspace, e *ledger.Entry) {
	if s.email == nil || ws.OwnerEmail == "" {
		return
	}

	subject := fmt.Sprintf("Your %s subscription is now %s", ws.Name, statusLabel(e.StatusAfter))
	body := statusEmailBody(ws, e, s.catalog)

	input := &ses.SendEmailInput{
		Source:      awssdk.String(s.fromAddress),
		Destination: &sestypes.Destination{ToAddresses: []string{ws.OwnerEmail}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	}
	if _, err := s.email.SendEmail(ctx, input); err != nil {
		s.log.WithError(err).Warn("status change email failed", map[string]interface{}{
			"workspace_id": ws.ID,
			"status_after": string(e.StatusAfter),
		})
		return
	}
	s.log.Info("status change email sent", map[string]interface{}{
		"workspace_id": ws.ID,
		"status_after": string(e.StatusAfter),
	})
}

// DriftDetected publishes an operator alert describing the correction.
func (s *Service) DriftDetected(ctx context.Context, ws *models.Workspace, e *ledger.Entry) {
	if s.topics == nil || s.opsTopicARN == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"workspaceId":  ws.ID,
		"entryId":      e.ID,
		"statusBefore": string(e.StatusBefore),
		"statusAfter":  string(e.StatusAfter),
		"planBefore":   string(e.PlanBefore),
		"planAfter":    string(e.PlanAfter),
		"recordedAt":   e.Timestamp,
	})
	if err != nil {
		s.log.WithError(err).Error("failed to marshal drift alert", nil)
		return
	}

	input := &sns.PublishInput{
		TopicArn: awssdk.String(s.opsTopicARN),
		Subject:  awssdk.String(fmt.Sprintf("Billing drift corrected for workspace %s", ws.ID)),
		Message:  awssdk.String(string(payload)),
	}
	if _, err := s.topics.Publish(ctx, input); err != nil {
		s.log.WithError(err).Warn("drift alert publish failed", map[string]interface{}{
			"workspace_id": ws.ID,
		})
	}
}

func statusLabel(status models.WorkspaceStatus) string {
	switch status {
	case models.StatusPastDue:
		return "past due"
	default:
		return string(status)
	}
}

func statusEmailBody(ws *models.Workspace, e *ledger.Entry, cat *catalog.Catalog) string {
	body := fmt.Sprintf("Hi,\n\nThe subscription for %s changed from %s to %s.\n\n%s\n",
		ws.Name, statusLabel(e.StatusBefore), statusLabel(e.StatusAfter),
		policy.UserMessage(e.StatusAfter))
	if e.PlanBefore != e.PlanAfter && cat != nil {
		body += fmt.Sprintf("\nYour plan is now %s ($%d/month).\n",
			cat.DisplayName(e.PlanAfter), cat.MonthlyPriceUSD(e.PlanAfter))
	}
	return body
}
