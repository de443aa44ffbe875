package engine_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRing(t *testing.T) {
	h := engine.NewHistory(10)
	for i := range 12 {
		h.Add(models.TaskOutcome{TaskID: fmt.Sprintf("t%d", i), Status: models.TaskDone})
	}

	list := h.List()
	require.Len(t, list, 10)
	assert.Equal(t, "t11", list[0].TaskID)
	assert.Equal(t, "t2", list[9].TaskID)
}

func TestHistoryTruncatesPrompt(t *testing.T) {
	h := engine.NewHistory(1)
	h.Add(models.TaskOutcome{Prompt: strings.Repeat("x", 200)})

	list := h.List()
	require.Len(t, list, 1)
	assert.Len(t, []rune(list[0].Prompt), 80)
	assert.True(t, strings.HasSuffix(list[0].Prompt, "..."))
}

func TestHistoryEmpty(t *testing.T) {
	assert.Empty(t, engine.NewHistory(3).List())
}
