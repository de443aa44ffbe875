package pipeline

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// notePreviewRunes is how much of a note body feeds keyword extraction.
const notePreviewRunes = 200

// Tagger extracts keyword tags by stop-word-filtered term frequency.
type Tagger struct {
	cfg  config.Tagging
	stop map[string]struct{}
}

// NewTagger returns a tagger for cfg. Zero limits fall back to the defaults.
func NewTagger(cfg config.Tagging) *Tagger {
	def := config.DefaultTagging()
	if cfg.StopWords == nil {
		cfg.StopWords = def.StopWords
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MaxAutoTags <= 0 {
		cfg.MaxAutoTags = def.MaxAutoTags
	}
	if cfg.MaxTotalTags <= 0 {
		cfg.MaxTotalTags = def.MaxTotalTags
	}
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Tagger{cfg: cfg, stop: stop}
}

// Extract returns up to MaxAutoTags terms from texts, most frequent first.
// Ties keep the order of first appearance.
func (t *Tagger) Extract(texts ...string) []string {
	counts := make(map[string]int)
	var order []string
	for _, text := range texts {
		for _, term := range terms(text) {
			if !t.keep(term) {
				continue
			}
			if counts[term] == 0 {
				order = append(order, term)
			}
			counts[term]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > t.cfg.MaxAutoTags {
		order = order[:t.cfg.MaxAutoTags]
	}
	return order
}

func (t *Tagger) keep(term string) bool {
	if len([]rune(term)) <= t.cfg.MinLength {
		return false
	}
	if _, stop := t.stop[term]; stop {
		return false
	}
	return !isNumeric(term)
}

// Merge combines caller tags with extracted ones, caller tags first,
// deduplicated and capped at MaxTotalTags.
func (t *Tagger) Merge(caller, auto []string) []string {
	merged := models.NormalizeTags(append(append([]string{}, caller...), auto...))
	if len(merged) > t.cfg.MaxTotalTags {
		merged = merged[:t.cfg.MaxTotalTags]
	}
	return merged
}

// Sources returns the text fields of an event that feed tag extraction:
// the value, the title, a note preview and the URL hostname.
func Sources(e models.MemoryEvent) []string {
	out := []string{e.Value, e.Metadata.Title}
	if note, ok := e.Metadata.AsNote(); ok {
		if r := []rune(note.Content); len(r) > 0 {
			out = append(out, string(r[:min(notePreviewRunes, len(r))]))
		}
	}
	if host := hostname(e.Metadata.URL); host != "" {
		out = append(out, host)
	}
	return out
}

func hostname(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
