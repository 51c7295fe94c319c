package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

const (
	minSubjectLen = 2
	minBodyLen    = 10
)

var (
	ErrInvalidRecipient = errors.New("mailer: invalid recipient email")
	ErrInvalidSubject   = errors.New("mailer: subject too short")
	ErrInvalidBody      = errors.New("mailer: body too short")
)

// Mailer implements outreach.Sender on top of a Transport and a sender rotation.
type Mailer struct {
	transport Transport
	senders   *Rotation
	logger    *logging.Logger
}

var _ outreach.Sender = (*Mailer)(nil)

func New(transport Transport, senders *Rotation, logger *logging.Logger) *Mailer {
	if transport == nil {
		panic("mailer: transport required")
	}
	if senders == nil {
		panic("mailer: sender rotation required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Mailer{transport: transport, senders: senders, logger: logger}
}

// Send validates and renders the content, then delivers it from the next
// sender in the rotation. Every failure is an *outreach.TransportError.
func (m *Mailer) Send(ctx context.Context, identity leads.Identity, content outreach.Content) (outreach.Receipt, error) {
	receipt, err := m.send(ctx, identity, content)
	if err != nil {
		return outreach.Receipt{}, &outreach.TransportError{Recipient: identity.Email, Err: err}
	}
	return receipt, nil
}

func (m *Mailer) send(ctx context.Context, identity leads.Identity, content outreach.Content) (outreach.Receipt, error) {
	subject := cleanSubject(content.Subject)
	if err := Validate(identity.Email, subject, content.Body); err != nil {
		return outreach.Receipt{}, err
	}

	sender := m.senders.Next()
	html, err := RenderHTML(content.Body, sender.Signature)
	if err != nil {
		return outreach.Receipt{}, err
	}
	msg := Message{
		FromEmail: sender.Email,
		FromName:  sender.Name,
		ReplyTo:   sender.Email,
		To:        strings.TrimSpace(identity.Email),
		ToName:    identity.Name,
		Subject:   subject,
		Text:      RenderText(content.Body, sender.Signature),
		HTML:      html,
	}

	id, err := m.transport.Deliver(ctx, msg)
	if err != nil {
		return outreach.Receipt{}, err
	}
	m.logger.Info("outreach email delivered", "to", msg.To, "from", sender.Email, "message_id", id)
	return outreach.Receipt{MessageID: id, From: sender.Email}, nil
}

// Validate checks the minimum a deliverable email needs.
func Validate(to, subject, body string) error {
	if to = strings.TrimSpace(to); to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	if len(strings.TrimSpace(subject)) < minSubjectLen {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	if n := len(strings.TrimSpace(body)); n < minBodyLen {
		return fmt.Errorf("%w: %d chars", ErrInvalidBody, n)
	}
	return nil
}

func cleanSubject(subject string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(subject), `"'`))
}
