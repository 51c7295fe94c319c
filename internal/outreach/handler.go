package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// CycleRunner is the entry point the HTTP handler triggers.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger string) (Report, error)
}

// Handler exposes the run-cycle entry point over HTTP.
type Handler struct {
	runner CycleRunner
	logger *logging.Logger
}

func NewHandler(runner CycleRunner, logger *logging.Logger) *Handler {
	if runner == nil {
		panic("outreach: cycle runner required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{runner: runner, logger: logger}
}

// RunCycle handles POST /outreach/cycles and blocks until the cycle finishes.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunCycle(r.Context(), "api")
	switch {
	case errors.Is(err, ErrCycleInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("run cycle failed", "error", err)
		http.Error(w, "cycle failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
