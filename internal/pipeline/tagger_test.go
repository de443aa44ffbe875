package pipeline

import (
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTaggerExtract(t *testing.T) {
	tagger := NewTagger(config.DefaultTagging())

	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{
			name:  "frequency then first appearance",
			texts: []string{"golang channels golang generics channels golang"},
			want:  []string{"golang", "channels", "generics"},
		},
		{
			name:  "drops stop words short terms and numbers",
			texts: []string{"the go and 2024 of react hooks"},
			want:  []string{"react", "hooks"},
		},
		{
			name:  "caps at six",
			texts: []string{"alpha bravo charlie delta echo foxtrot golf hotel"},
			want:  []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"},
		},
		{
			name:  "empty",
			texts: []string{"", "   "},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tagger.Extract(tt.texts...))
		})
	}
}

func TestTaggerMerge(t *testing.T) {
	tagger := NewTagger(config.Tagging{MaxTotalTags: 4})

	got := tagger.Merge([]string{"Work", "urgent"}, []string{"urgent", "golang", "react", "hooks"})
	assert.Equal(t, []string{"work", "urgent", "golang", "react"}, got)
}

func TestTaggerCustomConfig(t *testing.T) {
	tagger := NewTagger(config.Tagging{StopWords: []string{"golang"}, MinLength: 4, MaxAutoTags: 2})
	assert.Equal(t, []string{"channels", "generics"}, tagger.Extract("golang channels generics tips"))
}

func TestSources(t *testing.T) {
	e := models.MemoryEvent{
		Type:  models.EventVisit,
		Value: "https://www.github.com/golang/go",
		Metadata: models.DecodeMetadata(models.EventVisit, map[string]any{
			"url":   "https://www.github.com/golang/go",
			"title": "The Go repository",
		}),
	}
	src := Sources(e)
	assert.Contains(t, src, "The Go repository")
	assert.Contains(t, src, "github.com")
}
