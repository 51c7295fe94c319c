package cycles

import (
	"context"
	"errors"

	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
)

// Multi fans a report out to several recorders and joins their errors.
type Multi []outreach.Recorder

var _ outreach.Recorder = Multi(nil)

func (m Multi) RecordCycle(ctx context.Context, report outreach.Report) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordCycle(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
