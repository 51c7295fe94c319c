package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport sends emails via the SendGrid API.
type SendGridTransport struct {
	client sendgridAPI
	logger *logging.Logger
}

var _ Transport = (*SendGridTransport)(nil)

// NewSendGridTransport returns nil when no API key is configured.
func NewSendGridTransport(apiKey string, logger *logging.Logger) *SendGridTransport {
	if apiKey == "" {
		return nil
	}
	return newSendGridTransport(sendgrid.NewSendClient(apiKey), logger)
}

func newSendGridTransport(client sendgridAPI, logger *logging.Logger) *SendGridTransport {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridTransport{client: client, logger: logger}
}

func (s *SendGridTransport) Deliver(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("mailer: sendgrid client not configured")
	}

	from := mail.NewEmail(msg.FromName, msg.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail(msg.FromName, msg.ReplyTo))
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return "", fmt.Errorf("mailer: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return "", fmt.Errorf("mailer: sendgrid returned status %d", response.StatusCode)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode, "message_id", messageID)
	return messageID, nil
}
