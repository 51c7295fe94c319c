package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrWriteConflict is returned when the stored version moved since the lead was read
	ErrWriteConflict = errors.New("lead write conflict")

	ErrInvalidStatus = errors.New("invalid lead status")
	ErrMissingID     = errors.New("lead id is required")
	// ErrEmptyUpdate is returned for updates that append no history.
	ErrEmptyUpdate = errors.New("lead update must append history")
)

// StoreError wraps failures of the conversation store.
type StoreError struct {
	Op     string
	LeadID string
	Err    error
}

func (e *StoreError) Error() string {
	if e.LeadID == "" {
		return fmt.Sprintf("leads: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("leads: %s %s: %v", e.Op, e.LeadID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, leadID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, LeadID: leadID, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}
