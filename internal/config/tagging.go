package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tagging tunes keyword extraction for auto-tagging.
type Tagging struct {
	StopWords    []string `yaml:"stop_words"`
	MinLength    int      `yaml:"min_length"` // terms must be longer than this
	MaxAutoTags  int      `yaml:"max_auto_tags"`
	MaxTotalTags int      `yaml:"max_total_tags"`
}

// DefaultTagging returns the built-in tagging settings.
func DefaultTagging() Tagging {
	return Tagging{
		StopWords: []string{
			"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
			"had", "her", "was", "one", "our", "out", "has", "his", "how", "its",
			"may", "new", "now", "old", "see", "two", "who", "did", "get", "let",
			"put", "say", "she", "too", "use", "with", "this", "that", "from",
			"they", "will", "have", "what", "when", "your", "about", "which",
			"their", "there", "would", "these", "other", "into", "more", "some",
			"than", "then", "them", "been", "were", "also", "just", "like",
			"over", "only", "very", "here", "where", "after", "before", "while",
			"http", "https", "www", "com", "org", "net", "html", "index",
		},
		MinLength:    2,
		MaxAutoTags:  6,
		MaxTotalTags: 10,
	}
}

// LoadTagging returns DefaultTagging overlaid with the YAML file at path.
// An empty path yields the defaults. Zero values in the file keep defaults.
func LoadTagging(path string) (Tagging, error) {
	cfg := DefaultTagging()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read tagging config: %w", err)
	}

	var file Tagging
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse tagging config: %w", err)
	}

	if len(file.StopWords) > 0 {
		cfg.StopWords = file.StopWords
	}
	if file.MinLength > 0 {
		cfg.MinLength = file.MinLength
	}
	if file.MaxAutoTags > 0 {
		cfg.MaxAutoTags = file.MaxAutoTags
	}
	if file.MaxTotalTags > 0 {
		cfg.MaxTotalTags = file.MaxTotalTags
	}
	return cfg, nil
}
