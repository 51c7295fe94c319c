package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var journalTracer = otel.Tracer("outreach.journal")

// JournalEntry is a delivered message whose store write has not landed yet.
type JournalEntry struct {
	LeadID     string             `json:"lead_id"`
	Status     leads.Status       `json:"status"`
	Entry      leads.HistoryEntry `json:"entry"`
	Receipt    Receipt            `json:"receipt"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// SendJournal remembers sends the store did not record so the next cycle can
// commit them without sending again.
type SendJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
	Pending(ctx context.Context) ([]JournalEntry, error)
	Resolve(ctx context.Context, leadID string) error
}

// MemoryJournal keeps entries in process memory.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]JournalEntry
}

var _ SendJournal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]JournalEntry)}
}

func (j *MemoryJournal) Record(ctx context.Context, entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.LeadID] = entry
	return nil
}

func (j *MemoryJournal) Pending(ctx context.Context) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, 0, len(j.entries))
	for _, entry := range j.entries {
		out = append(out, entry)
	}
	sortJournal(out)
	return out, nil
}

func (j *MemoryJournal) Resolve(ctx context.Context, leadID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, leadID)
	return nil
}

// RedisJournal stores entries in a Redis hash keyed by lead id so they survive
// restarts and are visible to every worker.
type RedisJournal struct {
	client *redis.Client
	key    string
}

var _ SendJournal = (*RedisJournal)(nil)

func NewRedisJournal(client *redis.Client) *RedisJournal {
	if client == nil {
		panic("outreach: redis client required")
	}
	return &RedisJournal{client: client, key: "outreach:send-journal"}
}

func (j *RedisJournal) Record(ctx context.Context, entry JournalEntry) error {
	ctx, span := journalTracer.Start(ctx, "outreach.journal.record", trace.WithAttributes(attribute.String("lead.id", entry.LeadID)))
	defer span.End()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("outreach: marshal journal entry: %w", err)
	}
	if err := j.client.HSet(ctx, j.key, entry.LeadID, payload).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("outreach: record journal entry: %w", err)
	}
	return nil
}

func (j *RedisJournal) Pending(ctx context.Context) ([]JournalEntry, error) {
	ctx, span := journalTracer.Start(ctx, "outreach.journal.pending")
	defer span.End()

	raw, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("outreach: load journal: %w", err)
	}
	out := make([]JournalEntry, 0, len(raw))
	for leadID, payload := range raw {
		var entry JournalEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("outreach: decode journal entry %s: %w", leadID, err)
		}
		out = append(out, entry)
	}
	sortJournal(out)
	span.SetAttributes(attribute.Int("journal.pending", len(out)))
	return out, nil
}

func (j *RedisJournal) Resolve(ctx context.Context, leadID string) error {
	if err := j.client.HDel(ctx, j.key, leadID).Err(); err != nil {
		return fmt.Errorf("outreach: resolve journal entry: %w", err)
	}
	return nil
}

func sortJournal(entries []JournalEntry) {
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].RecordedAt.Before(entries[k].RecordedAt)
	})
}
