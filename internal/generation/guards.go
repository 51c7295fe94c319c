package generation

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholders is the lead and sender data substituted into generated text.
type Placeholders struct {
	Name       string
	Company    string
	SenderName string
	Agency     string
}

var unresolvedPlaceholder = regexp.MustCompile(`\[\[[^\]]*\]\]|\{\{[^}]*\}\}|\[[A-Za-z][A-Za-z _-]{0,40}\]|\{[A-Za-z][A-Za-z _-]{0,40}\}`)

// ResolvePlaceholders replaces the placeholders a model commonly leaves behind
// and returns an error naming any that remain unresolved.
func ResolvePlaceholders(text string, p Placeholders) (string, error) {
	first := ""
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		first = fields[0]
	}
	known := map[string]string{
		"name":           p.Name,
		"recipient name": p.Name,
		"full name":      p.Name,
		"first name":     first,
		"first_name":     first,
		"your name":      p.SenderName,
		"sender name":    p.SenderName,
		"company":        p.Company,
		"company name":   p.Company,
		"company_name":   p.Company,
		"agency":         p.Agency,
		"agency name":    p.Agency,
	}

	var (
		out       strings.Builder
		remaining []string
		last      int
	)
	for _, loc := range unresolvedPlaceholder.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		out.WriteString(text[last:loc[0]])
		last = loc[1]
		// Markdown link text is not a placeholder.
		if strings.HasPrefix(match, "[") && strings.HasPrefix(text[loc[1]:], "(") {
			out.WriteString(match)
			continue
		}
		key := strings.ToLower(strings.Trim(match, "[]{} "))
		if value, ok := known[key]; ok && strings.TrimSpace(value) != "" {
			out.WriteString(value)
			continue
		}
		out.WriteString(match)
		remaining = append(remaining, match)
	}
	out.WriteString(text[last:])

	if len(remaining) > 0 {
		return out.String(), fmt.Errorf("unresolved placeholders: %s", strings.Join(remaining, ", "))
	}
	return out.String(), nil
}

// OutputGuardResult describes leaked material found in generated text.
type OutputGuardResult struct {
	Leaked  bool
	Reasons []string
}

var leakPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"api_key", regexp.MustCompile(`(?i)\b(sk|pk|rk)[-_](live|test|proj)?[-_]?[a-z0-9]{16,}`)},
	{"aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"sendgrid_key", regexp.MustCompile(`\bSG\.[A-Za-z0-9_-]{16,}\.[A-Za-z0-9_-]{16,}`)},
	{"database_url", regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|redis)://\S+`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"prompt_disclosure", regexp.MustCompile(`(?i)(my|the) (system prompt|instructions) (is|are|say)`)},
	{"model_self_reference", regexp.MustCompile(`(?i)\bas an ai (language )?model\b`)},
	{"analysis_leak", regexp.MustCompile(`(?i)\b(strategy analysis|email formula|conversation stage)\s*:`)},
}

// ScanOutputForLeaks reports credentials, prompt fragments and analysis notes
// that must never reach a prospect.
func ScanOutputForLeaks(text string) OutputGuardResult {
	var result OutputGuardResult
	for _, lp := range leakPatterns {
		if lp.pattern.MatchString(text) {
			result.Leaked = true
			result.Reasons = append(result.Reasons, lp.name)
		}
	}
	return result
}

// PromptGuardResult scores inbound text for prompt-injection attempts.
type PromptGuardResult struct {
	Blocked bool
	Score   float64
	Reasons []string
}

const (
	injectionBlockThreshold = 0.7
	injectionWarnThreshold  = 0.3
)

var injectionPatterns = []struct {
	name    string
	weight  float64
	pattern *regexp.Regexp
}{
	{"ignore_instructions", 0.6, regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\b.{0,30}\b(previous|prior|above|all)\b.{0,20}\b(instructions|prompts?|rules)\b`)},
	{"role_override", 0.4, regexp.MustCompile(`(?i)\byou are (now|no longer)\b|\bact as (a|an|the)\b.{0,30}\b(system|developer|admin)`)},
	{"prompt_extraction", 0.5, regexp.MustCompile(`(?i)\b(reveal|print|show|repeat)\b.{0,30}\b(system prompt|instructions|hidden prompt)`)},
	{"chat_markup", 0.4, regexp.MustCompile(`(?i)<\|?(im_start|im_end|system)\|?>|\[/?INST\]`)},
	{"credential_request", 0.3, regexp.MustCompile(`(?i)\b(api key|password|secret key|access token)s?\b`)},
}

// ScreenInbound scores text written by a prospect before it enters a prompt.
func ScreenInbound(text string) PromptGuardResult {
	var result PromptGuardResult
	for _, ip := range injectionPatterns {
		if ip.pattern.MatchString(text) {
			result.Score += ip.weight
			result.Reasons = append(result.Reasons, ip.name)
		}
	}
	if result.Score > 1 {
		result.Score = 1
	}
	result.Blocked = result.Score >= injectionBlockThreshold
	return result
}

// Suspicious reports a score worth logging that stays below the block threshold.
func (r PromptGuardResult) Suspicious() bool {
	return !r.Blocked && r.Score >= injectionWarnThreshold
}
