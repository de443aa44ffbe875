// Package parser splits text into embedding chunks and extracts note
// frontmatter.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	h1Regex      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	hashtagRegex = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_-]+)`)
)

// Note is a parsed note body.
type Note struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title from frontmatter or the first h1
	Title string

	// Tags from frontmatter plus inline #hashtags, in order of appearance
	Tags []string

	// Body is the content after the frontmatter block
	Body string
}

// ParseFrontmatter splits an optional leading YAML block off a note.
// Malformed YAML is treated as absent frontmatter and the text is kept.
func ParseFrontmatter(content string) Note {
	note := Note{Frontmatter: make(map[string]any), Body: content}

	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if strings.HasPrefix(normalized, "---\n") {
		endIdx := strings.Index(normalized[4:], "\n---")
		if endIdx >= 0 {
			fm := normalized[4 : 4+endIdx]
			var parsed map[string]any
			if err := yaml.Unmarshal([]byte(fm), &parsed); err == nil {
				if parsed != nil {
					note.Frontmatter = parsed
				}
				rest := normalized[4+endIdx+4:]
				note.Body = strings.TrimPrefix(rest, "\n")
			}
		}
	}

	note.Title = extractTitle(note.Frontmatter, note.Body)
	note.Tags = append(stringSlice(note.Frontmatter["tags"]), extractHashtags(note.Body)...)
	return note
}

// extractTitle gets title from frontmatter or first h1.
func extractTitle(fm map[string]any, body string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}
	if match := h1Regex.FindStringSubmatch(body); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// stringSlice accepts a YAML list or a comma-separated string.
func stringSlice(v any) []string {
	switch v := v.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// extractHashtags finds #tags in content, skipping markdown headings.
func extractHashtags(content string) []string {
	matches := hashtagRegex.FindAllStringSubmatch(content, -1)

	tags := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, match := range matches {
		tag := strings.ToLower(match[1])
		if !seen[tag] {
			tags = append(tags, tag)
			seen[tag] = true
		}
	}
	return tags
}
