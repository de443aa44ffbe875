package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Severity ranks how sensitive detected personal data is.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "none"
}

// ParseSeverity reads "none", "low", "medium" or "high", case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return SeverityNone, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return SeverityNone, fmt.Errorf("%w: unknown pii severity %q", models.ErrValidation, s)
}

// PIIMatch summarizes the hits of one rule.
type PIIMatch struct {
	Count    int    `json:"count"`
	Severity string `json:"severity"`
	Sample   string `json:"sample"`
}

type piiRule struct {
	label    string
	pattern  *regexp.Regexp
	severity Severity
	valid    func(string) bool
}

var piiRules = []piiRule{
	{label: "email", pattern: regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), severity: SeverityLow},
	{label: "phone", pattern: regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`), severity: SeverityMedium},
	{label: "ipv4", pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), severity: SeverityMedium},
	{label: "ssn", pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), severity: SeverityHigh},
	{label: "credit_card", pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), severity: SeverityHigh, valid: luhn},
}

const piiSampleRunes = 120

// DetectPII scans text with every rule and returns the hits by label along
// with the highest severity seen.
func DetectPII(text string) (map[string]PIIMatch, Severity) {
	matches := map[string]PIIMatch{}
	highest := SeverityNone
	for _, rule := range piiRules {
		var found []string
		for _, m := range rule.pattern.FindAllString(text, -1) {
			if rule.valid == nil || rule.valid(m) {
				found = append(found, m)
			}
		}
		if len(found) == 0 {
			continue
		}
		sample := []rune(strings.TrimSpace(found[0]))
		if len(sample) > piiSampleRunes {
			sample = sample[:piiSampleRunes]
		}
		matches[rule.label] = PIIMatch{Count: len(found), Severity: rule.severity.String(), Sample: string(sample)}
		highest = max(highest, rule.severity)
	}
	return matches, highest
}

// luhn reports whether the digits of s pass the Luhn checksum, which card
// numbers do and most long numeric ids in URLs do not.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

// mergePII folds detected hits into the "auto" section of an existing pii
// metadata value, adding counts for labels already present.
func mergePII(existing any, detected map[string]PIIMatch) map[string]any {
	merged := map[string]any{}
	if m, ok := existing.(map[string]any); ok {
		for k, v := range m {
			merged[k] = v
		}
	}
	auto := map[string]any{}
	if m, ok := merged["auto"].(map[string]any); ok {
		for k, v := range m {
			auto[k] = v
		}
	}
	for label, hit := range detected {
		prev, ok := auto[label].(map[string]any)
		if !ok {
			auto[label] = map[string]any{"count": hit.Count, "severity": hit.Severity, "sample": hit.Sample}
			continue
		}
		entry := map[string]any{"severity": hit.Severity, "count": hit.Count + countOf(prev["count"])}
		if sample, ok := prev["sample"]; ok {
			entry["sample"] = sample
		} else {
			entry["sample"] = hit.Sample
		}
		auto[label] = entry
	}
	merged["auto"] = auto
	return merged
}

func countOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
