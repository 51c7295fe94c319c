package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the transport the publisher and worker share.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind names the entry point a trigger invokes.
type Kind string

const (
	KindRunCycle     Kind = "run_cycle"
	KindCheckReplies Kind = "check_replies"
)

func (k Kind) Valid() bool {
	return k == KindRunCycle || k == KindCheckReplies
}

type Payload struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Source      string    `json:"source,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func encodePayload(payload Payload) (Payload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Payload{}, "", fmt.Errorf("trigger: encode payload: %w", err)
	}
	return payload, string(body), nil
}

// DecodePayload parses a queue body and rejects unknown kinds.
func DecodePayload(body string) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Payload{}, fmt.Errorf("trigger: decode payload: %w", err)
	}
	if !payload.Kind.Valid() {
		return payload, fmt.Errorf("trigger: unknown kind %q", payload.Kind)
	}
	return payload, nil
}
