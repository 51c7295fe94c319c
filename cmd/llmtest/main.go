package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/outreach-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/outreach-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/mailer"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// llmtest runs one cycle for a single made-up lead against the configured
// LLM provider. Nothing is sent and no real lead store is touched.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	name := flag.String("name", "Ada Lovelace", "lead name")
	email := flag.String("email", "ada@analytical-engines.com", "lead email")
	company := flag.String("company", "Analytical Engines", "lead company")
	background := flag.String("background", "", "company background; empty scrapes the email domain")
	inbound := flag.String("reply", "", "simulate an inbound reply and generate the response instead of a cold open")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	lead := sampleLead(*name, *email, *company, *background, *inbound, time.Now().UTC())
	stub := mailer.NewStubTransport(logger)
	cfg.CycleLockBackend = "local"
	rt, err := bootstrap.Build(ctx, cfg, awsCfg, logger, bootstrap.Options{
		Registerer: prometheus.NewRegistry(),
		Transport:  stub,
		Store:      leads.NewInMemoryRepository(lead),
	})
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	defer rt.Close()

	start := time.Now()
	report, err := rt.Dispatcher.RunCycle(ctx, "llmtest")
	if err != nil {
		log.Fatalf("run cycle: %v", err)
	}

	fmt.Printf("cycle %s finished in %v\n", report.CycleID, time.Since(start).Round(time.Millisecond))
	for _, o := range report.Outcomes {
		fmt.Printf("  %s: %s %s -> %s %s\n", o.Email, o.Action, o.From, o.To, o.Error)
	}
	for _, msg := range stub.Sent() {
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("From:    %s <%s>\nTo:      %s\nSubject: %s\n\n%s\n", msg.FromName, msg.FromEmail, msg.To, msg.Subject, msg.Text)
	}
	if len(stub.Sent()) == 0 {
		os.Exit(1)
	}
}

func sampleLead(name, email, company, background, inbound string, now time.Time) leads.Lead {
	lead := leads.Lead{
		ID:                "llmtest-1",
		Identity:          leads.Identity{Name: name, Email: email, Company: company},
		CompanyBackground: background,
		Status:            leads.StatusNew,
	}
	if inbound == "" {
		return lead
	}
	lead.Status = leads.StatusReplied
	lead.History = []leads.HistoryEntry{
		leads.OutboundMessage(now.Add(-48*time.Hour), leads.ModeColdOpen, "Quick idea for "+company, "Hi "+lead.Identity.FirstName()+", saw what you are building and had an idea.", ""),
		leads.InboundMessage(now.Add(-time.Hour), "Re: Quick idea for "+company, inbound),
	}
	lead.Version = int64(len(lead.History))
	return lead
}
