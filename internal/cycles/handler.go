package cycles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Ledger looks up recorded cycles.
type Ledger interface {
	GetCycle(ctx context.Context, cycleID string) (*CycleRecord, error)
}

type Handler struct {
	ledger Ledger
	logger *logging.Logger
}

func NewHandler(ledger Ledger, logger *logging.Logger) *Handler {
	if ledger == nil {
		panic("cycles: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// GetCycle handles GET /outreach/cycles/{cycleID}.
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cycleID")
	rec, err := h.ledger.GetCycle(r.Context(), id)
	switch {
	case errors.Is(err, ErrCycleNotFound):
		http.Error(w, "cycle not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("get cycle failed", "cycle_id", id, "error", err)
		http.Error(w, "failed to load cycle", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}
