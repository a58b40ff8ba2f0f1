package store

// schemaSQL is the DDL for all tables. Later changes go through migrations.
const schemaSQL = `
-- Ontology graph: machines and KPIs
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL CHECK (entity_type IN ('machine', 'kpi')),
    description TEXT,
    atomic INTEGER NOT NULL DEFAULT 0,
    metadata JSON,
    UNIQUE(name, entity_type)
);

-- Ontology graph: typed edges (machine -produces_kpi-> kpi)
CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    source_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    metadata JSON,
    UNIQUE(source_entity_id, target_entity_id, relation_type)
);

-- Resolution audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    request_id TEXT NOT NULL,
    label TEXT NOT NULL,
    question TEXT,
    extraction TEXT NOT NULL,
    reference_date TEXT NOT NULL,
    records INTEGER NOT NULL DEFAULT 0,
    error_code INTEGER NOT NULL DEFAULT 0,
    issues TEXT,
    payload JSON,
    model_used TEXT,
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(relation_type);
`
