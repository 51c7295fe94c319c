// Package enrich builds the company background and portfolio selection used
// in cold-open emails.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var errNoText = errors.New("enrich: homepage has no readable text")

// HomepageScraper fetches a company homepage and extracts its headings and
// paragraphs as plain text.
type HomepageScraper struct {
	hc       *http.Client
	limiter  *HostLimiter
	maxChars int
}

func NewHomepageScraper(timeout time.Duration, limiter *HostLimiter, maxChars int) *HomepageScraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 1000
	}
	return &HomepageScraper{
		hc:       &http.Client{Timeout: timeout},
		limiter:  limiter,
		maxChars: maxChars,
	}
}

// Fetch accepts a bare domain or a full URL.
func (s *HomepageScraper) Fetch(ctx context.Context, domain string) (string, error) {
	target := homepageURL(domain)
	if target == "" {
		return "", errors.New("enrich: company domain is empty")
	}
	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, target); err != nil {
			return "", fmt.Errorf("enrich: rate limit %s: %w", target, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("User-Agent", "OutreachBot/1.0 (+company research)")

	res, err := s.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("enrich: get %s: %w", target, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("enrich: %s status %d", target, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return "", fmt.Errorf("enrich: parse %s: %w", target, err)
	}

	var parts []string
	doc.Find("h1, h2, h3, p").Each(func(_ int, sel *goquery.Selection) {
		if text := cleanText(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	text := strings.Join(parts, " ")
	if text == "" {
		return "", errNoText
	}
	if runes := []rune(text); len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}
	return text, nil
}

func homepageURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + strings.TrimSuffix(domain, "/")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
