package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	httpmiddleware "github.com/wolfman30/outreach-ai-platform/internal/http/middleware"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/trigger"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

const testSecret = "router-secret"

type countingRunner struct{ calls int }

func (c *countingRunner) RunCycle(ctx context.Context, trigger string) (outreach.Report, error) {
	c.calls++
	return outreach.Report{CycleID: "cycle-1", Trigger: trigger}, nil
}

type noopChecker struct{}

func (noopChecker) CheckReplies(ctx context.Context) (inbox.Report, error) {
	return inbox.Report{}, nil
}

func newTestRouter(t *testing.T, runner *countingRunner) http.Handler {
	t.Helper()
	logger := logging.Discard()
	store := leads.NewInMemoryRepository(leads.Lead{
		ID:       "lead-1",
		Identity: leads.Identity{Name: "Ada Lovelace", Email: "ada@engines.test", Company: "Engines"},
		Status:   leads.StatusNew,
	})
	return New(&Config{
		Logger:          logger,
		OutreachHandler: outreach.NewHandler(runner, logger),
		InboxHandler:    inbox.NewHandler(noopChecker{}, logger),
		LeadsHandler:    leads.NewHandler(store, logger),
		TriggerHandler:  trigger.NewHandler(trigger.NewPublisher(trigger.NewMemoryQueue(8), logger), logger),
		MetricsHandler:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		AdminAuthSecret: testSecret,
		TriggerRate:     rate.Every(time.Hour),
		TriggerBurst:    2,
	})
}

func bearer(t *testing.T, scope string) string {
	t.Helper()
	claims := httpmiddleware.OperatorClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func serve(h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterPublicEndpoints(t *testing.T) {
	h := newTestRouter(t, &countingRunner{})

	rr := serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])

	rr = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterOutreachRoutesRequireOperatorToken(t *testing.T) {
	runner := &countingRunner{}
	h := newTestRouter(t, runner)

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/outreach/cycles", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/outreach/leads", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/outreach/leads", bearer(t, "billing")).Code)
	assert.Zero(t, runner.calls)

	auth := bearer(t, OperatorScope)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/outreach/cycles", auth).Code)
	assert.Equal(t, 1, runner.calls)

	rr := serve(h, http.MethodGet, "/outreach/leads/lead-1", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ada@engines.test")

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/outreach/leads/nobody", auth).Code)
}

func TestRouterThrottlesControlRoutes(t *testing.T) {
	h := newTestRouter(t, &countingRunner{})
	auth := bearer(t, OperatorScope)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/outreach/replies/check", auth).Code)
	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/outreach/triggers/run_cycle", auth).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "/outreach/cycles", auth).Code)

	// reads are not throttled
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/outreach/leads", auth).Code)
}
