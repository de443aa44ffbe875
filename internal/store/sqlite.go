package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// SQLiteBackend persists events and embeddings in a local SQLite file.
type SQLiteBackend struct {
	path string
	db   *sql.DB
}

// NewSQLiteBackend returns a backend for the database file at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Init opens the database and creates the schema.
func (b *SQLiteBackend) Init(ctx context.Context) error {
	dsn := b.path
	if b.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
			return fmt.Errorf("create db dir: %w: %w", models.ErrStorage, err)
		}
		dsn = b.path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w: %w", models.ErrStorage, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("migrate sqlite: %w: %w", models.ErrStorage, err)
	}
	b.db = db
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id       TEXT PRIMARY KEY,
		type     TEXT NOT NULL,
		value    TEXT NOT NULL,
		metadata TEXT NOT NULL,
		pinned   INTEGER NOT NULL DEFAULT 0,
		ts       INTEGER NOT NULL,
		score    REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_type_value ON events(type, value, ts);

	CREATE TABLE IF NOT EXISTS event_tags (
		event_id TEXT NOT NULL,
		tag      TEXT NOT NULL,
		PRIMARY KEY (event_id, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);

	CREATE TABLE IF NOT EXISTS embeddings (
		id        TEXT PRIMARY KEY,
		event_id  TEXT NOT NULL,
		vector    BLOB NOT NULL,
		text      TEXT NOT NULL,
		metadata  TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		provider  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_event ON embeddings(event_id);
	CREATE INDEX IF NOT EXISTS idx_embeddings_timestamp ON embeddings(timestamp);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (b *SQLiteBackend) Close(context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}

func (b *SQLiteBackend) PutEvent(ctx context.Context, e models.MemoryEvent) error {
	meta, err := json.Marshal(e.Metadata.ToMap())
	if err != nil {
		return storageErr("marshal metadata", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, type, value, metadata, pinned, ts, score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata, pinned = excluded.pinned, score = excluded.score`,
		e.ID, string(e.Type), e.Value, string(meta), e.Metadata.Pinned, e.TS, e.Score)
	if err != nil {
		return storageErr("put event", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, e.ID); err != nil {
		return storageErr("clear tags", err)
	}
	for _, tag := range e.Metadata.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO event_tags (event_id, tag) VALUES (?, ?)`, e.ID, tag); err != nil {
			return storageErr("put tag", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

const eventColumns = `id, type, value, metadata, ts, score`

func scanEvent(row interface{ Scan(...any) error }) (models.MemoryEvent, error) {
	var (
		e    models.MemoryEvent
		typ  string
		meta string
	)
	if err := row.Scan(&e.ID, &typ, &e.Value, &meta, &e.TS, &e.Score); err != nil {
		return e, err
	}
	e.Type = models.EventType(typ)
	var raw map[string]any
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &raw); err != nil {
			return e, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
		}
	}
	e.Metadata = models.DecodeMetadata(e.Type, raw)
	return e, nil
}

func (b *SQLiteBackend) queryEvents(ctx context.Context, query string, args ...any) ([]models.MemoryEvent, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query events", err)
	}
	defer rows.Close()

	events := []models.MemoryEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query events", err)
	}
	return events, nil
}

func (b *SQLiteBackend) GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	return &e, nil
}

func (b *SQLiteBackend) DeleteEvent(ctx context.Context, id string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete event", err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, id); err != nil {
		return false, storageErr("delete tags", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (b *SQLiteBackend) QueryEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Since > 0 {
		where = append(where, "ts >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		where = append(where, "ts <= ?")
		args = append(args, f.Until)
	}
	if f.Pinned != nil {
		where = append(where, "pinned = ?")
		args = append(args, *f.Pinned)
	}
	if tags := models.NormalizeTags(f.Tags); len(tags) > 0 {
		where = append(where, fmt.Sprintf(
			"id IN (SELECT event_id FROM event_tags WHERE tag IN (%s) GROUP BY event_id HAVING COUNT(DISTINCT tag) = ?)",
			placeholders(len(tags))))
		for _, t := range tags {
			args = append(args, t)
		}
		args = append(args, len(tags))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	return b.queryEvents(ctx, query, args...)
}

func (b *SQLiteBackend) AllEvents(ctx context.Context) ([]models.MemoryEvent, error) {
	return b.queryEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY ts DESC, id DESC`)
}

func (b *SQLiteBackend) CountEvents(ctx context.Context) (int, error) {
	return b.count(ctx, `SELECT COUNT(*) FROM events`)
}

func (b *SQLiteBackend) CountSimilar(ctx context.Context, t models.EventType, value string, since int64) (int, error) {
	return b.count(ctx, `SELECT COUNT(*) FROM events WHERE type = ? AND value = ? AND ts >= ?`, string(t), value, since)
}

func (b *SQLiteBackend) EventIDsBefore(ctx context.Context, cutoff int64, keepPinned bool) ([]string, error) {
	query := `SELECT id FROM events WHERE ts < ?`
	if keepPinned {
		query += ` AND pinned = 0`
	}
	return b.ids(ctx, query+` ORDER BY ts ASC`, cutoff)
}

func (b *SQLiteBackend) DeleteEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := placeholders(len(ids))
	args := toArgs(ids)
	if _, err := b.db.ExecContext(ctx, `DELETE FROM events WHERE id IN (`+in+`)`, args...); err != nil {
		return storageErr("delete events", err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id IN (`+in+`)`, args...); err != nil {
		return storageErr("delete tags", err)
	}
	return nil
}

func (b *SQLiteBackend) AllTags(ctx context.Context) ([]string, error) {
	return b.ids(ctx, `SELECT DISTINCT tag FROM event_tags ORDER BY tag`)
}

func (b *SQLiteBackend) PutEmbedding(ctx context.Context, emb models.Embedding) error {
	meta, err := json.Marshal(emb.Metadata)
	if err != nil {
		return storageErr("marshal embedding metadata", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (id, event_id, vector, text, metadata, timestamp, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		emb.ID, emb.EventID, encodeVector(emb.Vector), emb.Text, string(meta), emb.Timestamp, emb.Provider)
	if err != nil {
		return storageErr("put embedding", err)
	}
	return nil
}

const embeddingColumns = `id, event_id, vector, text, metadata, timestamp, provider`

func scanEmbedding(row interface{ Scan(...any) error }) (models.Embedding, error) {
	var (
		emb      models.Embedding
		vec      []byte
		meta     string
		provider sql.NullString
	)
	if err := row.Scan(&emb.ID, &emb.EventID, &vec, &emb.Text, &meta, &emb.Timestamp, &provider); err != nil {
		return emb, err
	}
	emb.Vector = decodeVector(vec)
	emb.Provider = provider.String
	if err := json.Unmarshal([]byte(meta), &emb.Metadata); err != nil {
		return emb, fmt.Errorf("decode embedding metadata of %s: %w", emb.ID, err)
	}
	return emb, nil
}

func (b *SQLiteBackend) queryEmbeddings(ctx context.Context, query string, args ...any) ([]models.Embedding, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query embeddings", err)
	}
	defer rows.Close()

	out := []models.Embedding{}
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			return nil, storageErr("scan embedding", err)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query embeddings", err)
	}
	return out, nil
}

func (b *SQLiteBackend) GetEmbedding(ctx context.Context, id string) (*models.Embedding, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+embeddingColumns+` FROM embeddings WHERE id = ?`, id)
	emb, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get embedding", err)
	}
	return &emb, nil
}

func (b *SQLiteBackend) EmbeddingsByEvent(ctx context.Context, eventID string) ([]models.Embedding, error) {
	return b.queryEmbeddings(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings WHERE event_id = ? ORDER BY json_extract(metadata, '$.chunk_index')`, eventID)
}

func (b *SQLiteBackend) DeleteEmbeddingsByEvent(ctx context.Context, eventID string) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM embeddings WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, storageErr("delete embeddings", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (b *SQLiteBackend) RecentEmbeddings(ctx context.Context, limit int) ([]models.Embedding, error) {
	return b.queryEmbeddings(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings ORDER BY timestamp DESC, id ASC LIMIT ?`, limit)
}

func (b *SQLiteBackend) OldestEmbeddingIDs(ctx context.Context, n int) ([]string, error) {
	return b.ids(ctx, `SELECT id FROM embeddings ORDER BY timestamp ASC, id ASC LIMIT ?`, n)
}

func (b *SQLiteBackend) DeleteEmbeddings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
	if err != nil {
		return storageErr("delete embeddings", err)
	}
	return nil
}

func (b *SQLiteBackend) CountEmbeddings(ctx context.Context) (int, error) {
	return b.count(ctx, `SELECT COUNT(*) FROM embeddings`)
}

func (b *SQLiteBackend) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// ids runs a single-column string query.
func (b *SQLiteBackend) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// encodeVector packs float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
