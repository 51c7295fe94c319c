package trigger

import (
	"context"
	"fmt"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Publisher enqueues triggers for the outreach worker.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("trigger: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues a trigger of the given kind and returns its id.
func (p *Publisher) Publish(ctx context.Context, kind Kind, source string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("trigger: unknown kind %q", kind)
	}
	payload, body, err := encodePayload(Payload{Kind: kind, Source: source})
	if err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("trigger: enqueue %s: %w", kind, err)
	}
	p.logger.Debug("trigger enqueued", "trigger_id", payload.ID, "kind", kind, "source", source)
	return payload.ID, nil
}
