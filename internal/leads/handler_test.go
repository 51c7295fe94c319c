package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

func seededHandler() *Handler {
	repo := NewInMemoryRepository(
		Lead{ID: "l1", Identity: Identity{Name: "Ada", Email: "ada@example.com"}, Status: StatusNew},
		Lead{ID: "l2", Identity: Identity{Name: "Bob", Email: "bob@example.com"}, Status: StatusFailed},
		Lead{ID: "l3", Identity: Identity{Name: "Cy", Email: "cy@example.com"}, Status: StatusFailed},
	)
	return NewHandler(repo, logging.Discard())
}

func TestListLeadsFiltersByStatus(t *testing.T) {
	h := seededHandler()
	req := httptest.NewRequest(http.MethodGet, "/outreach/leads?status=failed&limit=1", nil)
	w := httptest.NewRecorder()

	h.ListLeads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Leads[0].ID != "l2" {
		t.Fatalf("unexpected page %+v", resp)
	}
}

func TestListLeadsRejectsUnknownStatus(t *testing.T) {
	h := seededHandler()
	req := httptest.NewRequest(http.MethodGet, "/outreach/leads?status=bounced", nil)
	w := httptest.NewRecorder()

	h.ListLeads(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetLead(t *testing.T) {
	h := seededHandler()

	for _, tc := range []struct {
		id   string
		code int
	}{
		{"l1", http.StatusOK},
		{"missing", http.StatusNotFound},
	} {
		req := httptest.NewRequest(http.MethodGet, "/outreach/leads/"+tc.id, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("leadID", tc.id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		w := httptest.NewRecorder()

		h.GetLead(w, req)

		if w.Code != tc.code {
			t.Fatalf("lead %s: expected %d, got %d", tc.id, tc.code, w.Code)
		}
	}
}
