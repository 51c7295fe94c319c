package enrich

import (
	"context"
	"strings"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/internal/portfolio"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// UnavailableBackground is used when no background can be built for a company.
const UnavailableBackground = "Company description unavailable."

type PageFetcher interface {
	Fetch(ctx context.Context, domain string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, domain, text string) (string, error)
}

type BackgroundCache interface {
	Get(ctx context.Context, domain string) (string, bool, error)
	Set(ctx context.Context, domain, background string) error
}

// Briefer implements outreach.BriefingSource.
type Briefer struct {
	fetcher    PageFetcher
	summarizer Summarizer
	cache      BackgroundCache
	catalog    *portfolio.Catalog
	limit      int
	logger     *logging.Logger
}

var _ outreach.BriefingSource = (*Briefer)(nil)

func NewBriefer(fetcher PageFetcher, summarizer Summarizer, logger *logging.Logger) *Briefer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Briefer{fetcher: fetcher, summarizer: summarizer, logger: logger}
}

func (b *Briefer) WithCache(cache BackgroundCache) *Briefer {
	b.cache = cache
	return b
}

func (b *Briefer) WithPortfolio(catalog *portfolio.Catalog, limit int) *Briefer {
	b.catalog = catalog
	b.limit = limit
	return b
}

// Brief never fails on research problems; those degrade to
// UnavailableBackground. Only a cancelled context is returned as an error.
func (b *Briefer) Brief(ctx context.Context, lead leads.Lead) (outreach.Briefing, error) {
	background := strings.TrimSpace(lead.CompanyBackground)
	if background == "" {
		background = b.research(ctx, lead)
	}
	if err := ctx.Err(); err != nil {
		return outreach.Briefing{}, err
	}
	return outreach.Briefing{
		CompanyBackground: background,
		Portfolio:         b.catalog.Select(lead.Identity, background, b.limit),
	}, nil
}

func (b *Briefer) research(ctx context.Context, lead leads.Lead) string {
	domain := CompanyDomain(lead.Identity)
	if domain == "" || b.fetcher == nil || b.summarizer == nil {
		return UnavailableBackground
	}
	logger := b.logger.ForLead(lead.ID)

	if b.cache != nil {
		cached, ok, err := b.cache.Get(ctx, domain)
		if err != nil {
			logger.Warn("company background cache read failed", "domain", domain, "error", err)
		} else if ok {
			return cached
		}
	}

	text, err := b.fetcher.Fetch(ctx, domain)
	if err != nil {
		logger.Warn("company homepage fetch failed", "domain", domain, "error", err)
		return UnavailableBackground
	}
	summary, err := b.summarizer.Summarize(ctx, domain, text)
	if err != nil {
		logger.Warn("company summary failed", "domain", domain, "error", err)
		return UnavailableBackground
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, domain, summary); err != nil {
			logger.Warn("company background cache write failed", "domain", domain, "error", err)
		}
	}
	return summary
}

var freeMailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "icloud.com": true, "aol.com": true, "proton.me": true, "protonmail.com": true,
}

// CompanyDomain returns the lead's company domain, falling back to the email
// domain unless it belongs to a free mail provider.
func CompanyDomain(identity leads.Identity) string {
	if d := strings.ToLower(strings.TrimSpace(identity.Domain)); d != "" {
		d = strings.TrimPrefix(strings.TrimPrefix(d, "https://"), "http://")
		return strings.TrimPrefix(strings.TrimSuffix(d, "/"), "www.")
	}
	_, host, ok := strings.Cut(strings.ToLower(strings.TrimSpace(identity.Email)), "@")
	if !ok || host == "" || freeMailDomains[host] {
		return ""
	}
	return host
}
