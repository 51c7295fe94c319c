// Package inbox watches sender mailboxes for prospect replies and records
// them on the matching lead.
package inbox

import (
	"context"
	"time"
)

// Message is an unseen inbound email reduced to what the monitor needs.
type Message struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Text    string
}

// Account is the login for one sender mailbox.
type Account struct {
	Email    string
	Password string
}

// Mailbox is an open, selected INBOX.
type Mailbox interface {
	FetchUnseen(ctx context.Context, since time.Time, limit int) ([]Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// Dialer opens the INBOX of an account.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Mailbox, error)
}
