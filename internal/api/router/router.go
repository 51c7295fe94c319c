package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/wolfman30/outreach-ai-platform/internal/cycles"
	httpmiddleware "github.com/wolfman30/outreach-ai-platform/internal/http/middleware"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/trigger"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// OperatorScope is the JWT scope the outreach routes require.
const OperatorScope = "outreach"

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	OutreachHandler *outreach.Handler
	InboxHandler    *inbox.Handler
	LeadsHandler    *leads.Handler
	CyclesHandler   *cycles.Handler
	TriggerHandler  *trigger.Handler
	MetricsHandler  http.Handler
	AdminAuthSecret string

	// Control routes (cycle and reply triggers) share one budget per caller.
	TriggerRate  rate.Limit
	TriggerBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	triggerRate := cfg.TriggerRate
	if triggerRate == 0 {
		triggerRate = rate.Every(10 * time.Second)
	}
	triggerBurst := cfg.TriggerBurst
	if triggerBurst <= 0 {
		triggerBurst = 3
	}
	limiter := httpmiddleware.NewRateLimiter(triggerRate, triggerBurst)

	r.Route("/outreach", func(r chi.Router) {
		r.Use(httpmiddleware.OperatorJWT(cfg.AdminAuthSecret, OperatorScope))

		r.Group(func(control chi.Router) {
			control.Use(limiter.Middleware)
			if cfg.OutreachHandler != nil {
				control.Post("/cycles", cfg.OutreachHandler.RunCycle)
			}
			if cfg.InboxHandler != nil {
				control.Post("/replies/check", cfg.InboxHandler.CheckReplies)
			}
			if cfg.TriggerHandler != nil {
				control.Post("/triggers/{kind}", cfg.TriggerHandler.Enqueue)
			}
		})

		if cfg.CyclesHandler != nil {
			r.Get("/cycles/{cycleID}", cfg.CyclesHandler.GetCycle)
		}
		if cfg.LeadsHandler != nil {
			r.Get("/leads", cfg.LeadsHandler.ListLeads)
			r.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
