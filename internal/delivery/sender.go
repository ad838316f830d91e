// Package delivery sends fired triggers to their recipients. The engine
// treats delivery as a black box: it hands over an inspection and a trigger
// snapshot and only cares whether the send succeeded.
package delivery

import (
	"context"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
)

// Sender delivers one fired trigger
type Sender interface {
	Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error
}

// NoopSender logs deliveries without sending anything. It stands in when no
// SMTP relay is configured, which keeps local development usable.
type NoopSender struct {
	logger logging.Logger
}

// NewNoopSender creates a sender that only logs
func NewNoopSender(logger logging.Logger) *NoopSender {
	return &NoopSender{
		logger: logger.WithFields(logging.Component("delivery")),
	}
}

func (s *NoopSender) Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error {
	s.logger.Info("Delivery suppressed, no relay configured",
		logging.InspectionID(inspection.ID),
		logging.TriggerID(trigger.ID),
		logging.Field{Key: "subject", Value: trigger.Delivery.Subject},
		logging.Field{Key: "recipients", Value: len(resolveRecipients(inspection, trigger))},
	)
	return nil
}

// resolveRecipients returns the trigger's explicit recipient list, falling
// back to the email addresses of the inspection's contacts
func resolveRecipients(inspection *models.Inspection, trigger *models.Trigger) []string {
	if len(trigger.Delivery.Recipients) > 0 {
		return trigger.Delivery.Recipients
	}
	var recipients []string
	for _, contact := range inspection.Contacts {
		if contact.Email != "" {
			recipients = append(recipients, contact.Email)
		}
	}
	return recipients
}
