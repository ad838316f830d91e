package delivery

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/models"
)

// EmailConfig holds the SMTP relay settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate checks the relay settings
func (c EmailConfig) Validate() error {
	if c.Host == "" {
		return apperrors.ConfigError("smtp host is required")
	}
	if c.Port <= 0 {
		return apperrors.ConfigError(fmt.Sprintf("invalid smtp port %d", c.Port))
	}
	if c.From == "" {
		return apperrors.ConfigError("smtp from address is required")
	}
	return nil
}

// mailDialer is the slice of gomail.Dialer the sender needs
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers triggers over SMTP. Date-anchored triggers carry a
// calendar invite for the inspection appointment.
type EmailSender struct {
	dialer mailDialer
	from   string
	logger logging.Logger
}

// NewEmailSender creates an SMTP sender from the given relay config
func NewEmailSender(config EmailConfig, logger logging.Logger) (*EmailSender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &EmailSender{
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		from:   config.From,
		logger: logger.WithFields(logging.Component("delivery")),
	}, nil
}

func (s *EmailSender) Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error {
	recipients := resolveRecipients(inspection, trigger)
	if len(recipients) == 0 {
		return apperrors.ValidationError("trigger has no recipients").
			WithContext("trigger_id", trigger.ID)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", trigger.Delivery.Subject)
	m.SetBody("text/html", trigger.Delivery.Body)

	if trigger.TriggerKey.IsDateRelative() && inspection.Date != nil {
		invite, err := BuildInvite(inspection, trigger)
		if err != nil {
			s.logger.Warn("Could not build calendar invite, sending without it",
				logging.TriggerID(trigger.ID),
				logging.Field{Key: "error", Value: err.Error()},
			)
		} else {
			m.Attach("inspection.ics", gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(invite)
				return err
			}))
		}
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return apperrors.ConnectionError("smtp delivery failed", err).
			WithContext("trigger_id", trigger.ID)
	}

	s.logger.Debug("Email delivered",
		logging.TriggerID(trigger.ID),
		logging.Field{Key: "recipients", Value: len(recipients)},
	)
	return nil
}
