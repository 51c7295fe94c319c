package leads

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lead's position in the outreach lifecycle. It caches the last
// transition recorded in the conversation history.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusAwaitingReply Status = "AWAITING_REPLY"
	StatusReplied       Status = "REPLIED"
	StatusResponded     Status = "RESPONDED"
	StatusFailed        Status = "FAILED"
)

// legacyStatuses maps the labels older spreadsheets carry onto the current set.
var legacyStatuses = map[string]Status{
	"new":     StatusNew,
	"sent":    StatusAwaitingReply,
	"replied": StatusReplied,
	"active":  StatusResponded,
	"failed":  StatusFailed,
}

// ParseStatus normalizes a stored status value. Empty cells are treated as NEW.
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StatusNew, nil
	}
	candidate := Status(strings.ToUpper(strings.ReplaceAll(trimmed, " ", "_")))
	if candidate.Valid() {
		return candidate, nil
	}
	if legacy, ok := legacyStatuses[strings.ToLower(trimmed)]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAwaitingReply, StatusReplied, StatusResponded, StatusFailed:
		return true
	}
	return false
}

// Direction of a conversation message.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// EntryKind separates real messages from failure markers.
type EntryKind string

const (
	KindMessage EntryKind = "message"
	KindFailure EntryKind = "failure"
)

// Mode is the generation mode that produced (or failed to produce) an outbound message.
type Mode string

const (
	ModeColdOpen Mode = "cold_open"
	ModeReply    Mode = "reply"
)

// Identity is the prospect's contact profile.
type Identity struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Domain   string `json:"domain,omitempty"`
	Role     string `json:"role,omitempty"`
	Headline string `json:"headline,omitempty"`
}

// FirstName returns the first word of the contact name.
func (i Identity) FirstName() string {
	fields := strings.Fields(i.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// HistoryEntry is one append-only element of a lead's conversation history.
type HistoryEntry struct {
	Kind      EntryKind `json:"kind"`
	Direction Direction `json:"direction,omitempty"`
	At        time.Time `json:"at"`
	Subject   string    `json:"subject,omitempty"`
	Text      string    `json:"text,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// IsMessage reports whether the entry carries conversation content.
func (e HistoryEntry) IsMessage() bool {
	return e.Kind == KindMessage || e.Kind == ""
}

// OutboundMessage builds a history entry for a sent email.
func OutboundMessage(at time.Time, mode Mode, subject, text, stage string) HistoryEntry {
	return HistoryEntry{
		Kind:      KindMessage,
		Direction: DirectionOutbound,
		At:        at.UTC(),
		Subject:   subject,
		Text:      text,
		Mode:      mode,
		Stage:     stage,
	}
}

// InboundMessage builds a history entry for a prospect reply.
func InboundMessage(at time.Time, subject, text string) HistoryEntry {
	return HistoryEntry{
		Kind:      KindMessage,
		Direction: DirectionInbound,
		At:        at.UTC(),
		Subject:   subject,
		Text:      text,
	}
}

// FailureMarker records a failed attempt in the given mode.
func FailureMarker(at time.Time, mode Mode, err error) HistoryEntry {
	entry := HistoryEntry{
		Kind: KindFailure,
		At:   at.UTC(),
		Mode: mode,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

// Lead is a single prospect record.
type Lead struct {
	ID                string         `json:"id"`
	Identity          Identity       `json:"identity"`
	CompanyBackground string         `json:"company_background,omitempty"`
	Status            Status         `json:"status"`
	History           []HistoryEntry `json:"history"`
	// Version is an opaque optimistic-concurrency token; pass it back unchanged in LeadUpdate.
	Version int64 `json:"version"`
}

// Messages returns the conversation messages, excluding failure markers.
func (l Lead) Messages() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(l.History))
	for _, entry := range l.History {
		if entry.IsMessage() {
			out = append(out, entry)
		}
	}
	return out
}

// LastMessage returns the most recent conversation message.
func (l Lead) LastMessage() (HistoryEntry, bool) {
	for i := len(l.History) - 1; i >= 0; i-- {
		if l.History[i].IsMessage() {
			return l.History[i], true
		}
	}
	return HistoryEntry{}, false
}

// HasOutbound reports whether any message was ever sent to the lead.
func (l Lead) HasOutbound() bool {
	for _, entry := range l.History {
		if entry.IsMessage() && entry.Direction == DirectionOutbound {
			return true
		}
	}
	return false
}

// FailedAttempts counts failure markers recorded after the last outbound message.
func (l Lead) FailedAttempts() int {
	count := 0
	for i := len(l.History) - 1; i >= 0; i-- {
		entry := l.History[i]
		if entry.IsMessage() && entry.Direction == DirectionOutbound {
			break
		}
		if entry.Kind == KindFailure {
			count++
		}
	}
	return count
}

// LastFailure returns the most recent failure marker, if any.
func (l Lead) LastFailure() (HistoryEntry, bool) {
	for i := len(l.History) - 1; i >= 0; i-- {
		if l.History[i].Kind == KindFailure {
			return l.History[i], true
		}
	}
	return HistoryEntry{}, false
}

// ThreadSubject is the subject of the first outbound message.
func (l Lead) ThreadSubject() string {
	for _, entry := range l.History {
		if entry.IsMessage() && entry.Direction == DirectionOutbound && entry.Subject != "" {
			return entry.Subject
		}
	}
	return ""
}

// Clone returns a deep copy so callers cannot mutate store state.
func (l Lead) Clone() Lead {
	out := l
	out.History = append([]HistoryEntry(nil), l.History...)
	return out
}

// LeadUpdate is an atomic status change plus appended history.
type LeadUpdate struct {
	ID              string
	ExpectedVersion int64
	Status          Status
	Append          []HistoryEntry
}

// Validate checks the update before it reaches a backend.
func (u LeadUpdate) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrMissingID
	}
	if !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	if len(u.Append) == 0 {
		return ErrEmptyUpdate
	}
	return nil
}

// apply returns a copy of l with u applied; version handling is left to the store.
func (l Lead) apply(u LeadUpdate) Lead {
	out := l.Clone()
	out.Status = u.Status
	out.History = append(out.History, u.Append...)
	return out
}
