package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes mail to the log instead of a wire. It is the default
// transport until an SMTP relay is configured for the deployment.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer builds a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("Mail composed",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
