package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- EVENT TABLE (behavioral events)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS type ON event TYPE string;
    DEFINE FIELD IF NOT EXISTS value ON event TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON event TYPE object FLEXIBLE;
    -- Denormalized from metadata for indexed filtering
    DEFINE FIELD IF NOT EXISTS tags ON event TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS pinned ON event TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS ts ON event TYPE int;
    DEFINE FIELD IF NOT EXISTS score ON event TYPE float DEFAULT 0.0;

    DEFINE INDEX IF NOT EXISTS event_ts ON event FIELDS ts;
    DEFINE INDEX IF NOT EXISTS event_type_ts ON event FIELDS type, ts;
    DEFINE INDEX IF NOT EXISTS event_tags ON event FIELDS tags;

    -- ==========================================================================
    -- EMBEDDING TABLE (one row per text chunk, id = <event>-chunk-<i>)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS embedding SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS event_id ON embedding TYPE string;
    DEFINE FIELD IF NOT EXISTS vector ON embedding TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS text ON embedding TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON embedding TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS timestamp ON embedding TYPE int;
    DEFINE FIELD IF NOT EXISTS provider ON embedding TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS embedding_event ON embedding FIELDS event_id;
    DEFINE INDEX IF NOT EXISTS embedding_timestamp ON embedding FIELDS timestamp;
`
