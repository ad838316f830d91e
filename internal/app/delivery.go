package app

import (
	"automation-engine/internal/circuitbreaker"
	"automation-engine/internal/delivery"
)

func (app *App) initializeDelivery() error {
	if app.Config.SMTPHost == "" {
		app.Logger.Warn("SMTP not configured, trigger deliveries will be logged only")
		app.Sender = delivery.NewNoopSender(app.Logger)
		return nil
	}

	sender, err := delivery.NewEmailSender(delivery.EmailConfig{
		Host:     app.Config.SMTPHost,
		Port:     atoi(app.Config.SMTPPort, 587),
		Username: app.Config.SMTPUsername,
		Password: app.Config.SMTPPassword,
		From:     app.Config.SMTPFrom,
	}, app.Logger)
	if err != nil {
		return err
	}

	breaker := circuitbreaker.NewGoBreaker("smtp", circuitbreaker.SMTPConfig, app.Logger)
	app.Sender = delivery.NewBreakerSender(sender, breaker)
	return nil
}
