package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// eventFields selects an event row with its record key as a plain string.
const eventFields = `record::id(id) AS id, type, value, metadata, ts, score`

// eventRecord is the stored shape of a MemoryEvent. UpsertEvent also copies
// tags and pinned out of metadata into indexed columns.
type eventRecord struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Value    string         `json:"value"`
	Metadata map[string]any `json:"metadata"`
	TS       int64          `json:"ts"`
	Score    float64        `json:"score"`
}

func (r eventRecord) toModel() models.MemoryEvent {
	t := models.EventType(r.Type)
	return models.MemoryEvent{
		ID:       r.ID,
		Type:     t,
		Value:    r.Value,
		Metadata: models.DecodeMetadata(t, r.Metadata),
		TS:       r.TS,
		Score:    r.Score,
	}
}

func toModels(records []eventRecord) []models.MemoryEvent {
	events := make([]models.MemoryEvent, 0, len(records))
	for _, r := range records {
		events = append(events, r.toModel())
	}
	return events
}

// UpsertEvent writes an event, replacing any previous version with the same id.
func (c *Client) UpsertEvent(ctx context.Context, e models.MemoryEvent) error {
	defer c.observe(metrics.OpDBQuery, time.Now())

	tags := e.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("event", $id) CONTENT {
			type: $type,
			value: $value,
			metadata: $metadata,
			tags: $tags,
			pinned: $pinned,
			ts: $ts,
			score: $score
		}
	`, map[string]any{
		"id":       e.ID,
		"type":     string(e.Type),
		"value":    e.Value,
		"metadata": e.Metadata.ToMap(),
		"tags":     tags,
		"pinned":   e.Metadata.Pinned,
		"ts":       e.TS,
		"score":    e.Score,
	})
	return wrapQueryError("upsert event", err)
}

// GetEvent retrieves an event by id. Returns ErrNotFound when it does not exist.
func (c *Client) GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]eventRecord](ctx, c.db,
		`SELECT `+eventFields+` FROM type::record("event", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError("get event", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	e := (*results)[0].Result[0].toModel()
	return &e, nil
}

// QueryEvents returns events matching the filter, newest first.
func (c *Client) QueryEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	var where []string
	vars := map[string]any{"limit": f.EffectiveLimit()}
	if f.Type != "" {
		where = append(where, "type = $type")
		vars["type"] = string(f.Type)
	}
	if f.Since > 0 {
		where = append(where, "ts >= $since")
		vars["since"] = f.Since
	}
	if f.Until > 0 {
		where = append(where, "ts <= $until")
		vars["until"] = f.Until
	}
	if f.Pinned != nil {
		where = append(where, "pinned = $pinned")
		vars["pinned"] = *f.Pinned
	}
	if tags := models.NormalizeTags(f.Tags); len(tags) > 0 {
		where = append(where, "tags CONTAINSALL $tags")
		vars["tags"] = tags
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	sql := fmt.Sprintf(`SELECT %s FROM event %s ORDER BY ts DESC LIMIT $limit`, eventFields, whereClause)

	results, err := surrealdb.Query[[]eventRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError("query events", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryEvent{}, nil
	}
	return toModels((*results)[0].Result), nil
}

// AllEvents returns every stored event, newest first.
func (c *Client) AllEvents(ctx context.Context) ([]models.MemoryEvent, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]eventRecord](ctx, c.db,
		`SELECT `+eventFields+` FROM event ORDER BY ts DESC`, nil)
	if err != nil {
		return nil, wrapQueryError("all events", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.MemoryEvent{}, nil
	}
	return toModels((*results)[0].Result), nil
}

// CountEvents returns the number of stored events.
func (c *Client) CountEvents(ctx context.Context) (int, error) {
	return c.count(ctx, "event", "", nil)
}

// CountSimilar counts events with the same type and value at or after since.
func (c *Client) CountSimilar(ctx context.Context, t models.EventType, value string, since int64) (int, error) {
	return c.count(ctx, "event", "WHERE type = $type AND value = $value AND ts >= $since", map[string]any{
		"type":  string(t),
		"value": value,
		"since": since,
	})
}

// DeleteEvent removes an event. Returns true when a record was deleted.
func (c *Client) DeleteEvent(ctx context.Context, id string) (bool, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]map[string]any](ctx, c.db,
		`DELETE type::record("event", $id) RETURN BEFORE`,
		map[string]any{"id": id})
	if err != nil {
		return false, wrapQueryError("delete event", err)
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// EventIDsBefore returns ids of events with ts < cutoff. Pinned events are
// skipped when keepPinned is set.
func (c *Client) EventIDsBefore(ctx context.Context, cutoff int64, keepPinned bool) ([]string, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	sql := `SELECT record::id(id) AS id, ts FROM event WHERE ts < $cutoff`
	if keepPinned {
		sql += ` AND pinned = false`
	}
	sql += ` ORDER BY ts ASC`

	results, err := surrealdb.Query[[]struct {
		ID string `json:"id"`
	}](ctx, c.db, sql, map[string]any{"cutoff": cutoff})
	if err != nil {
		return nil, wrapQueryError("event ids before", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// DeleteEvents removes the events with the given ids.
func (c *Client) DeleteEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	defer c.observe(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db,
		`DELETE event WHERE record::id(id) IN $ids`,
		map[string]any{"ids": ids})
	return wrapQueryError("delete events", err)
}

// AllTags returns the sorted set of tags used by any event.
func (c *Client) AllTags(ctx context.Context) ([]string, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]string](ctx, c.db,
		`RETURN array::sort(array::distinct(array::flatten((SELECT VALUE tags FROM event))))`, nil)
	if err != nil {
		return nil, wrapQueryError("all tags", err)
	}
	if results == nil || len(*results) == 0 {
		return []string{}, nil
	}
	return (*results)[0].Result, nil
}

// count returns the number of rows of a table matching an optional WHERE clause.
func (c *Client) count(ctx context.Context, table, where string, vars map[string]any) (int, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]struct {
		C int `json:"c"`
	}](ctx, c.db, fmt.Sprintf(`SELECT count() AS c FROM %s %s GROUP ALL`, table, where), vars)
	if err != nil {
		return 0, wrapQueryError("count "+table, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}
