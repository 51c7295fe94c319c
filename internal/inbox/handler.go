package inbox

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// ReplyChecker is the entry point the HTTP handler triggers.
type ReplyChecker interface {
	CheckReplies(ctx context.Context) (Report, error)
}

type Handler struct {
	checker ReplyChecker
	logger  *logging.Logger
}

func NewHandler(checker ReplyChecker, logger *logging.Logger) *Handler {
	if checker == nil {
		panic("inbox: reply checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{checker: checker, logger: logger}
}

// CheckReplies handles POST /outreach/replies/check.
func (h *Handler) CheckReplies(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.CheckReplies(r.Context())
	if err != nil {
		h.logger.Error("reply check failed", "error", err)
		http.Error(w, "reply check failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
