package engine

import (
	"sync"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// outcomePromptRunes bounds the prompt kept in a history record.
const outcomePromptRunes = 80

// History keeps the most recent task outcomes in a fixed-size ring.
type History struct {
	mu   sync.Mutex
	buf  []models.TaskOutcome
	next int
	size int
}

// NewHistory returns a ring holding up to n outcomes.
func NewHistory(n int) *History {
	if n <= 0 {
		n = DefaultHistorySize
	}
	return &History{buf: make([]models.TaskOutcome, n)}
}

// Add records o, overwriting the oldest entry when full.
func (h *History) Add(o models.TaskOutcome) {
	o.Prompt = models.TruncateRunes(o.Prompt, outcomePromptRunes)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = o
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// List returns the recorded outcomes, newest first.
func (h *History) List() []models.TaskOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.TaskOutcome, 0, h.size)
	for i := 1; i <= h.size; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
