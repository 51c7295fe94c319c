package locks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileLocker uses advisory file locks. It guards single-host deployments
// where Redis is not available; the ttl is ignored and the lock lives until
// Release or process exit.
type FileLocker struct {
	dir string
}

var _ Locker = (*FileLocker)(nil)

func NewFileLocker(dir string) *FileLocker {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &FileLocker{dir: dir}
}

func (l *FileLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("locks: create lock dir: %w", err)
	}
	path := filepath.Join(l.dir, sanitizeKey(key)+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locks: lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &fileLease{lock: fl}, nil
}

type fileLease struct {
	lock *flock.Flock
	once sync.Once
	err  error
}

func (l *fileLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.lock.Unlock()
	})
	return l.err
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
