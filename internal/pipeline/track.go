package pipeline

import (
	"context"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// noteValueRunes bounds the value of a note tracked without a title.
const noteValueRunes = 120

func withTags(meta map[string]any, tags []string) map[string]any {
	if len(tags) > 0 {
		meta["tags"] = tags
	}
	return meta
}

// TrackSearch records a search query.
func (p *Pipeline) TrackSearch(ctx context.Context, query, engine string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventSearch,
		Value:    query,
		Metadata: map[string]any{"query": query, "engine": engine},
	})
}

// TrackVisit records a page visit.
func (p *Pipeline) TrackVisit(ctx context.Context, url, title string, durationMs int64) Result {
	meta := map[string]any{"url": url, "title": title}
	if durationMs > 0 {
		meta["duration_ms"] = durationMs
	}
	return p.Process(ctx, Draft{Type: models.EventVisit, Value: url, Metadata: meta})
}

// TrackNote records a note. Frontmatter in content may set title and tags.
func (p *Pipeline) TrackNote(ctx context.Context, title, content string, tags []string) Result {
	value := title
	if value == "" {
		value = models.TruncateRunes(content, noteValueRunes)
	}
	meta := map[string]any{"content": content}
	if title != "" {
		meta["title"] = title
	}
	return p.Process(ctx, Draft{Type: models.EventNote, Value: value, Metadata: withTags(meta, tags)})
}

// TrackBookmark records a bookmarked page.
func (p *Pipeline) TrackBookmark(ctx context.Context, url, title, folder string, tags []string) Result {
	meta := map[string]any{"url": url, "title": title}
	if folder != "" {
		meta["folder"] = folder
	}
	return p.Process(ctx, Draft{Type: models.EventBookmark, Value: title, Metadata: withTags(meta, tags)})
}

// TrackModeSwitch records a change of browsing mode.
func (p *Pipeline) TrackModeSwitch(ctx context.Context, from, to string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventModeSwitch,
		Value:    to,
		Metadata: map[string]any{"from": from, "to": to},
	})
}

// TrackAction records a user action on a target.
func (p *Pipeline) TrackAction(ctx context.Context, action, target string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventAction,
		Value:    action + " " + target,
		Metadata: map[string]any{"action": action, "target": target},
	})
}

// TrackHighlight records text selected on a page.
func (p *Pipeline) TrackHighlight(ctx context.Context, url, selection string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventHighlight,
		Value:    selection,
		Metadata: map[string]any{"url": url, "selection": selection},
	})
}

// TrackScreenshot records a captured screenshot.
func (p *Pipeline) TrackScreenshot(ctx context.Context, url, title, path string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventScreenshot,
		Value:    title,
		Metadata: map[string]any{"url": url, "title": title, "path": path},
	})
}

// TrackPrefetch records a page loaded ahead of a visit.
func (p *Pipeline) TrackPrefetch(ctx context.Context, url string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventPrefetch,
		Value:    url,
		Metadata: map[string]any{"url": url},
	})
}

// TrackTask records a finished AI task.
func (p *Pipeline) TrackTask(ctx context.Context, kind models.TaskKind, prompt, provider, model string) Result {
	return p.Process(ctx, Draft{
		Type:     models.EventTask,
		Value:    prompt,
		Metadata: map[string]any{"kind": string(kind), "provider": provider, "model": model},
	})
}

// TrackAgent records an agent run with its steps.
func (p *Pipeline) TrackAgent(ctx context.Context, goal string, steps []string) Result {
	meta := map[string]any{"goal": goal}
	if len(steps) > 0 {
		meta["steps"] = steps
	}
	return p.Process(ctx, Draft{Type: models.EventAgent, Value: goal, Metadata: meta})
}
