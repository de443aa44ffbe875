package pipeline

import (
	"context"
	"fmt"
)

// ReindexProgress is called after each event with the running totals.
type ReindexProgress func(done, total int)

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Events     int `json:"events"`
	Embeddings int `json:"embeddings"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Reindex drops and regenerates the chunk embeddings of every stored event,
// e.g. after switching embedding model. Per-event failures are counted and
// the run continues; context cancellation stops it.
func (p *Pipeline) Reindex(ctx context.Context, progress ReindexProgress) (ReindexResult, error) {
	var res ReindexResult
	if p.chain == nil || p.vectors == nil {
		return res, fmt.Errorf("reindex: no embedder or vector index configured")
	}
	events, err := p.events.AllEvents(ctx)
	if err != nil {
		return res, fmt.Errorf("load events: %w", err)
	}

	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Events++

		if _, err := p.vectors.DeleteByEventID(ctx, e.ID); err != nil {
			res.Failed++
			p.logger.Warn("reindex: drop chunks failed", "event_id", e.ID, "error", err)
		} else {
			ids, err := p.embed(ctx, e, embedTextFor(e))
			switch {
			case err != nil:
				res.Failed++
				p.logger.Warn("reindex: embed failed", "event_id", e.ID, "error", err)
			case len(ids) == 0:
				res.Skipped++
			default:
				res.Embeddings += len(ids)
			}
		}

		if progress != nil {
			progress(i+1, len(events))
		}
	}

	p.logger.Info("reindex complete",
		"events", res.Events, "embeddings", res.Embeddings, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}
