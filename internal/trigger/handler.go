package trigger

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Handler accepts asynchronous trigger requests over HTTP.
type Handler struct {
	publisher *Publisher
	logger    *logging.Logger
}

func NewHandler(publisher *Publisher, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("trigger: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{publisher: publisher, logger: logger}
}

type enqueueResponse struct {
	TriggerID string `json:"trigger_id"`
	Kind      Kind   `json:"kind"`
}

// Enqueue handles POST /outreach/triggers/{kind} and returns 202 once queued.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		http.Error(w, "unknown trigger kind", http.StatusBadRequest)
		return
	}
	id, err := h.publisher.Publish(r.Context(), kind, "api")
	if err != nil {
		h.logger.Error("enqueue trigger failed", "error", err, "kind", kind)
		http.Error(w, "failed to enqueue trigger", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(enqueueResponse{TriggerID: id, Kind: kind})
}
