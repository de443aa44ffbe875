package parser

import (
	"strings"
)

// ChunkConfig defines chunking parameters, measured in runes.
type ChunkConfig struct {
	// Size is the maximum length of one chunk
	Size int
	// Overlap is how far each window steps back from the previous end
	Overlap int
}

// DefaultChunkConfig returns the embedding defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    512,
		Overlap: 50,
	}
}

// normalize guards against configurations that would never advance.
func (c ChunkConfig) normalize() ChunkConfig {
	if c.Size <= 0 {
		c.Size = DefaultChunkConfig().Size
	}
	if c.Overlap < 0 || c.Overlap >= c.Size/2 {
		c.Overlap = 0
	}
	return c
}

// ChunkText splits text into overlapping windows of at most cfg.Size runes.
// A window that ends inside the text is cut after the last sentence end
// (. ! ?) or newline found past its midpoint. The next window starts
// cfg.Overlap runes before the previous cut. Blank text yields no chunks.
func ChunkText(text string, cfg ChunkConfig) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	cfg = cfg.normalize()

	runes := []rune(text)
	if len(runes) <= cfg.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+cfg.Size, len(runes))
		if end < len(runes) {
			if cut := breakPoint(runes, start, end); cut > 0 {
				end = cut
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}
		start = end - cfg.Overlap
	}
	return chunks
}

// breakPoint returns the index just past the last boundary rune in
// runes[mid:end], or 0 when there is none.
func breakPoint(runes []rune, start, end int) int {
	mid := start + (end-start)/2
	for i := end - 1; i > mid; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return 0
}
