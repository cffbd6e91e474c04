package store

// Schema contains all SQL statements for database initialization.
// Timestamps are UNIX seconds. is_useful and deleted_at are the only
// nullable columns; optional text defaults to the empty string.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    consent_global INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    summary TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    is_useful INTEGER,
    usefulness_reason TEXT NOT NULL DEFAULT '',
    global_sharing_blocked INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_relations (
    id TEXT PRIMARY KEY,
    source_topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    target_topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    strength REAL NOT NULL DEFAULT 0.5,
    relation_type TEXT NOT NULL DEFAULT 'related',
    created_at INTEGER NOT NULL,
    UNIQUE (source_topic_id, target_topic_id)
);

CREATE TABLE IF NOT EXISTS conversation_topics (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (conversation_id, topic_id)
);

CREATE TABLE IF NOT EXISTS insights (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    user_id TEXT NOT NULL REFERENCES users(id),
    content TEXT NOT NULL,
    importance_score REAL NOT NULL DEFAULT 0.5,
    vector_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_topics (
    insight_id TEXT NOT NULL REFERENCES insights(id) ON DELETE CASCADE,
    topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    PRIMARY KEY (insight_id, topic_id)
);

CREATE TABLE IF NOT EXISTS global_insights (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    topic_ids TEXT NOT NULL DEFAULT '',
    use_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_log (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    user_id TEXT NOT NULL REFERENCES users(id),
    processed_at INTEGER NOT NULL,
    is_useful INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    topics_extracted TEXT NOT NULL DEFAULT '[]',
    insights_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, deleted);
CREATE INDEX IF NOT EXISTS idx_conversations_pending ON conversations(processed, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_user ON insights(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_insights_conversation ON insights(conversation_id);
CREATE INDEX IF NOT EXISTS idx_topic_relations_source ON topic_relations(source_topic_id);
CREATE INDEX IF NOT EXISTS idx_topic_relations_target ON topic_relations(target_topic_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_conversation ON processing_log(conversation_id);
`
