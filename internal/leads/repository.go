package leads

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is the conversation store the outreach engine reads and writes.
//
// UpdateLead is atomic per lead: the status change and the appended history
// land together or not at all, and a stale ExpectedVersion fails with
// ErrWriteConflict instead of overwriting a concurrent writer.
type Store interface {
	FetchLeads(ctx context.Context) ([]Lead, error)
	GetLead(ctx context.Context, id string) (Lead, error)
	UpdateLead(ctx context.Context, update LeadUpdate) error
}

// InMemoryRepository keeps leads in process memory, preserving insertion order.
type InMemoryRepository struct {
	mu    sync.RWMutex
	order []string
	leads map[string]Lead
}

var _ Store = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(seed ...Lead) *InMemoryRepository {
	r := &InMemoryRepository{
		leads: make(map[string]Lead),
	}
	for _, lead := range seed {
		r.Add(lead)
	}
	return r
}

// Add inserts a lead, assigning an id and NEW status when missing.
func (r *InMemoryRepository) Add(lead Lead) Lead {
	if strings.TrimSpace(lead.ID) == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = StatusNew
	}
	lead = lead.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.leads[lead.ID]; !exists {
		r.order = append(r.order, lead.ID)
	}
	r.leads[lead.ID] = lead
	return lead.Clone()
}

// FetchLeads returns all leads in insertion order.
func (r *InMemoryRepository) FetchLeads(ctx context.Context) ([]Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("fetch", "", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Lead, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.leads[id].Clone())
	}
	return out, nil
}

// GetLead returns a single lead by id.
func (r *InMemoryRepository) GetLead(ctx context.Context, id string) (Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return Lead{}, storeErr("get", id, ErrLeadNotFound)
	}
	return lead.Clone(), nil
}

// UpdateLead applies the update when the version still matches.
func (r *InMemoryRepository) UpdateLead(ctx context.Context, update LeadUpdate) error {
	if err := update.Validate(); err != nil {
		return storeErr("update", update.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return storeErr("update", update.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.leads[update.ID]
	if !ok {
		return storeErr("update", update.ID, ErrLeadNotFound)
	}
	if current.Version != update.ExpectedVersion {
		return storeErr("update", update.ID, ErrWriteConflict)
	}
	next := current.apply(update)
	next.Version = current.Version + 1
	r.leads[update.ID] = next
	return nil
}
