package outreach

import (
	"errors"
	"fmt"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
)

// ErrCycleInProgress is returned when another cycle holds the cycle lock.
var ErrCycleInProgress = errors.New("outreach: cycle already in progress")

// GenerationError reports a failed or invalid content generation.
type GenerationError struct {
	Mode leads.Mode
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Mode, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TransportError reports a failed email delivery.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func asGenerationError(mode leads.Mode, err error) error {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return err
	}
	return &GenerationError{Mode: mode, Err: err}
}

func asTransportError(recipient string, err error) error {
	if err == nil {
		return nil
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return err
	}
	return &TransportError{Recipient: recipient, Err: err}
}

// ErrorKind names the error class for outcomes and logs.
func ErrorKind(err error) string {
	var (
		genErr   *GenerationError
		tErr     *TransportError
		storeErr *leads.StoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &genErr):
		return "generation"
	case errors.As(err, &tErr):
		return "transport"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "internal"
	}
}
