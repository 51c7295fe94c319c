package mailer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// StubTransport logs and keeps messages instead of sending them.
type StubTransport struct {
	mu     sync.Mutex
	sent   []Message
	logger *logging.Logger
}

var _ Transport = (*StubTransport)(nil)

func NewStubTransport(logger *logging.Logger) *StubTransport {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubTransport{logger: logger}
}

func (s *StubTransport) Deliver(_ context.Context, msg Message) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	id := "stub-" + uuid.NewString()
	s.logger.Info("stub transport: would send email", "to", msg.To, "from", msg.FromEmail, "subject", msg.Subject, "message_id", id)
	return id, nil
}

// Sent returns a copy of every message delivered so far.
func (s *StubTransport) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
