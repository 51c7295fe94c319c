package leads

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Handler exposes read-only lead views for operators.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("leads: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// LeadSummary is the list view of a lead.
type LeadSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Company        string `json:"company"`
	Status         Status `json:"status"`
	Messages       int    `json:"messages"`
	FailedAttempts int    `json:"failed_attempts"`
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []LeadSummary `json:"leads"`
	Count  int           `json:"count"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// ListLeads handles GET /outreach/leads?status=FAILED&limit=50&offset=0
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil && v >= 0 {
			offset = v
		}
	}
	var statusFilter Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := ParseStatus(raw)
		if err != nil {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		statusFilter = parsed
	}

	all, err := h.store.FetchLeads(r.Context())
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	summaries := make([]LeadSummary, 0, len(all))
	for _, lead := range all {
		if statusFilter != "" && lead.Status != statusFilter {
			continue
		}
		summaries = append(summaries, summarize(lead))
	}
	if offset > len(summaries) {
		offset = len(summaries)
	}
	end := offset + limit
	if end > len(summaries) {
		end = len(summaries)
	}
	page := summaries[offset:end]

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  page,
		Count:  len(page),
		Offset: offset,
		Limit:  limit,
	})
}

// GetLead handles GET /outreach/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leadID")
	if id == "" {
		http.Error(w, "missing lead id", http.StatusBadRequest)
		return
	}
	lead, err := h.store.GetLead(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load lead", "error", err, "lead_id", id)
		http.Error(w, "failed to load lead", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func summarize(lead Lead) LeadSummary {
	return LeadSummary{
		ID:             lead.ID,
		Name:           lead.Identity.Name,
		Email:          lead.Identity.Email,
		Company:        lead.Identity.Company,
		Status:         lead.Status,
		Messages:       len(lead.Messages()),
		FailedAttempts: lead.FailedAttempts(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
