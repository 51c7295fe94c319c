// Package locks provides the mutual-exclusion leases that keep a single outreach
// cycle active and serialize writers per lead.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned when the key is held by another owner.
var ErrLocked = errors.New("locks: already held")

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases keyed by name.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// LocalLocker is an in-process Locker. Expired leases can be taken over.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	now   func() time.Time
	token uint64
}

type localHold struct {
	token     uint64
	expiresAt time.Time
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *LocalLocker) WithClock(now func() time.Time) *LocalLocker {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if hold, ok := l.held[key]; ok && (hold.expiresAt.IsZero() || now.Before(hold.expiresAt)) {
		return nil, ErrLocked
	}
	l.token++
	hold := localHold{token: l.token}
	if ttl > 0 {
		hold.expiresAt = now.Add(ttl)
	}
	l.held[key] = hold
	return &localLease{locker: l, key: key, token: hold.token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uint64
	once   sync.Once
}

func (l *localLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		if hold, ok := l.locker.held[l.key]; ok && hold.token == l.token {
			delete(l.locker.held, l.key)
		}
	})
	return nil
}
