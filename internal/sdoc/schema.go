package sdoc

const schemaVersion = 1

const schemaSQL = `CREATE TABLE IF NOT EXISTS sdocs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    mime_type TEXT,
    source_path TEXT,
    status TEXT NOT NULL,
    metadata_json TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (project_id, filename)
);

CREATE TABLE IF NOT EXISTS sdoc_links (
    source_id INTEGER NOT NULL REFERENCES sdocs(id) ON DELETE CASCADE,
    target_id INTEGER NOT NULL REFERENCES sdocs(id) ON DELETE CASCADE,
    PRIMARY KEY (source_id, target_id)
);

CREATE TABLE IF NOT EXISTS sdoc_search (
    sdoc_id INTEGER PRIMARY KEY REFERENCES sdocs(id) ON DELETE CASCADE,
    project_id INTEGER NOT NULL,
    body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sdoc_search_project ON sdoc_search(project_id);

CREATE TABLE IF NOT EXISTS sdoc_embeddings (
    sdoc_id INTEGER PRIMARY KEY REFERENCES sdocs(id) ON DELETE CASCADE,
    dims INTEGER NOT NULL,
    vector BLOB NOT NULL
);`
