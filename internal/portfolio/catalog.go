// Package portfolio loads the agency's showcase projects and picks the ones
// most relevant to a lead.
package portfolio

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/outreach-ai-platform/internal/leads"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
)

const matchWeight = 2

// Item is one showcase project.
type Item struct {
	Title       string   `yaml:"title"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	Industries  []string `yaml:"industries"`
	Services    []string `yaml:"services"`
}

// Catalog is the full list of showcase projects in file order.
type Catalog struct {
	Items []Item `yaml:"items"`
}

// LoadCatalog reads a YAML catalog. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return &Catalog{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("portfolio: read %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("portfolio: parse catalog: %w", err)
	}
	for i, item := range c.Items {
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.URL) == "" {
			return nil, fmt.Errorf("portfolio: item %d: %w", i, errors.New("title and url are required"))
		}
	}
	return &c, nil
}

// Select scores each item against the lead: +2 when one of its industries
// appears in the lead's profile, +2 when one of its services does. Items with
// no match are left out; ties keep catalog order.
func (c *Catalog) Select(identity leads.Identity, companyBackground string, limit int) []outreach.PortfolioItem {
	if c == nil || limit <= 0 {
		return nil
	}
	text := strings.ToLower(strings.Join([]string{
		identity.Company, identity.Domain, identity.Role, identity.Headline, companyBackground,
	}, " "))

	type scored struct {
		item  Item
		score int
	}
	var matches []scored
	for _, item := range c.Items {
		score := 0
		if containsAny(text, item.Industries) {
			score += matchWeight
		}
		if containsAny(text, item.Services) {
			score += matchWeight
		}
		if score > 0 {
			matches = append(matches, scored{item: item, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]outreach.PortfolioItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, outreach.PortfolioItem{Title: m.item.Title, URL: m.item.URL, Description: m.item.Description})
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		n := strings.ToLower(strings.TrimSpace(needle))
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
