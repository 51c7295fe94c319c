package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/outreach-ai-platform/internal/config"
	"github.com/wolfman30/outreach-ai-platform/internal/cycles"
	"github.com/wolfman30/outreach-ai-platform/internal/enrich"
	"github.com/wolfman30/outreach-ai-platform/internal/generation"
	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/mailer"
	"github.com/wolfman30/outreach-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/portfolio"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// Runtime is the wired outreach system shared by every entry point.
type Runtime struct {
	Store      leads.Store
	Dispatcher *outreach.Dispatcher
	Monitor    *inbox.Monitor
	Generator  *generation.Generator
	Mailer     *mailer.Mailer
	// Ledger is nil when no cycles table is configured.
	Ledger  *cycles.DynamoRecorder
	Metrics *metrics.OutreachMetrics
	Redis   *redis.Client

	closers []func()
}

// Close releases connections in reverse construction order.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Options carries the parts of the runtime entry points may substitute.
type Options struct {
	Registerer prometheus.Registerer
	// Transport overrides the configured email provider.
	Transport mailer.Transport
	// Store overrides the configured lead store.
	Store leads.Store
}

// Build wires the outreach runtime from config.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		rt.Close()
		return nil, err
	}

	rt.Metrics = metrics.NewOutreachMetrics(opts.Registerer)
	rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if rt.Redis != nil {
		rt.closers = append(rt.closers, func() { _ = rt.Redis.Close() })
	}

	rt.Store = opts.Store
	if rt.Store == nil {
		store, closeStore, err := BuildLeadStore(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		rt.Store = store
		rt.closers = append(rt.closers, closeStore)
	}
	if sheet, ok := rt.Store.(*leads.SheetsRepository); ok {
		sheet.WithInvalidRowHook(func(int, error) { rt.Metrics.ObserveInvalidLeadRow() })
	}

	llm, closeLLM, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	rt.closers = append(rt.closers, closeLLM)
	if err != nil {
		return fail(err)
	}

	senders, err := BuildSenders(cfg)
	if err != nil {
		return fail(err)
	}
	rotation, err := mailer.NewRotation(senders)
	if err != nil {
		return fail(err)
	}
	transport := opts.Transport
	if transport == nil {
		transport = BuildTransport(cfg, awsCfg, logger)
	}
	rt.Mailer = mailer.New(transport, rotation, logger)

	agency := generation.AgencyProfile{
		Name:         cfg.AgencyName,
		Description:  cfg.AgencyDescription,
		Services:     cfg.AgencyServices,
		SenderName:   senders[0].Name,
		CalendarLink: cfg.CalendarLink,
	}
	rt.Generator = generation.NewGenerator(llm, agency, logger).WithSampling(cfg.LLMMaxTokens, cfg.LLMTemperature)

	briefer, err := buildBriefer(cfg, llm, rt.Redis, logger)
	if err != nil {
		return fail(err)
	}

	replyDetection, err := outreach.ParseReplyDetection(cfg.ReplyDetection)
	if err != nil {
		return fail(err)
	}
	router, err := outreach.NewRouter(rt.Generator, briefer, outreach.Policy{
		MaxAttempts:    cfg.MaxAttempts,
		ReplyDetection: replyDetection,
	})
	if err != nil {
		return fail(err)
	}

	cycleLocker, leadLocker, err := BuildLockers(cfg, rt.Redis, logger)
	if err != nil {
		return fail(err)
	}

	rt.Dispatcher = outreach.NewDispatcher(rt.Store, router, rt.Mailer, logger).
		WithCycleLocker(cycleLocker, cfg.CycleLockTTL).
		WithLeadLocker(leadLocker, cfg.LeadLockTTL).
		WithJournal(BuildJournal(rt.Redis)).
		WithMetrics(rt.Metrics).
		WithConcurrency(cfg.CycleConcurrency).
		WithGenerationTimeout(cfg.GenerationTimeout)
	if recorder := buildRecorder(cfg, awsCfg, rt, logger); recorder != nil {
		rt.Dispatcher.WithRecorder(recorder)
	}

	accounts := MailboxAccounts(senders, cfg.IMAPPassword)
	if len(accounts) == 0 {
		logger.Warn("no IMAP credentials configured; reply checks will find nothing")
	}
	rt.Monitor = inbox.NewMonitor(rt.Store, inbox.NewIMAPDialer(cfg.IMAPAddr, logger), accounts, logger).
		WithLeadLocker(leadLocker, cfg.LeadLockTTL).
		WithWindow(cfg.ReplyLookback, cfg.ReplyFetchLimit).
		WithMetrics(rt.Metrics)

	return rt, nil
}

func buildBriefer(cfg *appconfig.Config, llm generation.LLMClient, redisClient *redis.Client, logger *logging.Logger) (*enrich.Briefer, error) {
	catalog, err := portfolio.LoadCatalog(cfg.PortfolioFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	limiter := enrich.NewHostLimiter(cfg.ScrapeRatePerHost, 1)
	scraper := enrich.NewHomepageScraper(cfg.ScrapeTimeout, limiter, cfg.ScrapeMaxTextChars)
	briefer := enrich.NewBriefer(scraper, enrich.NewLLMSummarizer(llm), logger).
		WithPortfolio(catalog, cfg.PortfolioLimit)
	if redisClient != nil {
		briefer.WithCache(enrich.NewRedisBackgroundCache(redisClient, cfg.CompanyCacheTTL))
	}
	return briefer, nil
}

func buildRecorder(cfg *appconfig.Config, awsCfg aws.Config, rt *Runtime, logger *logging.Logger) outreach.Recorder {
	var recorders cycles.Multi
	if table := strings.TrimSpace(cfg.CyclesTable); table != "" {
		rt.Ledger = cycles.NewDynamoRecorder(dynamodb.NewFromConfig(awsCfg), table, logger)
		recorders = append(recorders, rt.Ledger)
	}
	if bucket := strings.TrimSpace(cfg.CycleArchiveBucket); bucket != "" {
		recorders = append(recorders, cycles.NewS3Archiver(s3.NewFromConfig(awsCfg), bucket, logger))
	}
	if len(recorders) == 0 {
		return nil
	}
	return recorders
}
