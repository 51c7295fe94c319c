package mailer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SenderIdentity is a mailbox outreach emails are sent from.
type SenderIdentity struct {
	Email     string `yaml:"email"`
	Name      string `yaml:"name"`
	Signature string `yaml:"signature"`
	// IMAPPassword may reference an environment variable as ${NAME}.
	IMAPPassword string `yaml:"imap_password"`
}

type sendersFile struct {
	Senders []SenderIdentity `yaml:"senders"`
}

// LoadSenders reads sender identities from a YAML file.
func LoadSenders(path string) ([]SenderIdentity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mailer: read senders file: %w", err)
	}
	return ParseSenders(raw)
}

func ParseSenders(raw []byte) ([]SenderIdentity, error) {
	var file sendersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("mailer: parse senders: %w", err)
	}
	for i := range file.Senders {
		s := &file.Senders[i]
		s.Email = strings.TrimSpace(s.Email)
		s.IMAPPassword = os.ExpandEnv(s.IMAPPassword)
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("mailer: sender %d: %w", i, err)
		}
	}
	if len(file.Senders) == 0 {
		return nil, errors.New("mailer: senders file lists no senders")
	}
	return file.Senders, nil
}

func (s SenderIdentity) validate() error {
	if !strings.Contains(s.Email, "@") {
		return fmt.Errorf("invalid email %q", s.Email)
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("display name is required")
	}
	return nil
}

// Rotation hands out sender identities round-robin.
type Rotation struct {
	mu      sync.Mutex
	senders []SenderIdentity
	next    int
}

func NewRotation(senders []SenderIdentity) (*Rotation, error) {
	if len(senders) == 0 {
		return nil, errors.New("mailer: at least one sender is required")
	}
	for i, s := range senders {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("mailer: sender %d: %w", i, err)
		}
	}
	return &Rotation{senders: append([]SenderIdentity(nil), senders...)}, nil
}

func (r *Rotation) Next() SenderIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.senders[r.next]
	r.next = (r.next + 1) % len(r.senders)
	return s
}

// All returns every configured sender in rotation order.
func (r *Rotation) All() []SenderIdentity {
	return append([]SenderIdentity(nil), r.senders...)
}
