// Package sqlite provides the SQLite implementation of the catalog store.
package sqlite

// Schema contains the SQL statements to create the catalog schema for SQLite.
// Timestamps are stored as fixed-width RFC3339 UTC text so that lexicographic
// comparison matches chronological order; JSON documents are stored as TEXT.
const Schema = `
-- Staging extractions: conversational fragments awaiting routing
CREATE TABLE IF NOT EXISTS staging_extractions (
    id TEXT PRIMARY KEY,
    bucket TEXT NOT NULL,
    title TEXT,
    content TEXT,
    summary TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Todos: actionable items routed from the Todos bucket
CREATE TABLE IF NOT EXISTS todos (
    id TEXT PRIMARY KEY,
    title TEXT,
    description TEXT,
    priority TEXT,
    status TEXT NOT NULL DEFAULT 'unassigned',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    phase_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Bugs: defect reports, open or already fixed at extraction time
CREATE TABLE IF NOT EXISTS bugs (
    id TEXT PRIMARY KEY,
    title TEXT,
    description TEXT,
    severity TEXT,
    status TEXT NOT NULL DEFAULT 'open',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    phase_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Knowledge: ideas, quirks, and uncategorized observations
CREATE TABLE IF NOT EXISTS knowledge (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    summary TEXT,
    type TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Decisions: recorded choices with their rationale
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Lessons: things learned the hard way
CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Journal: dated narrative entries (journal and worklog types)
CREATE TABLE IF NOT EXISTS journal (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    entry_type TEXT,
    status TEXT NOT NULL DEFAULT 'logged',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Docs: reference documentation subtyped by origin bucket
CREATE TABLE IF NOT EXISTS docs (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    doc_type TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Conventions: naming, structure, and pattern rules
CREATE TABLE IF NOT EXISTS conventions (
    id TEXT PRIMARY KEY,
    name TEXT,
    content TEXT,
    convention_type TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Snippets: code fragments with their surrounding context
CREATE TABLE IF NOT EXISTS snippets (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    context TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    project_id TEXT,
    client_id TEXT,
    source_session_id TEXT,
    consolidated_into TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Sessions: recorded conversations moving through the archive lifecycle
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT,
    raw_content TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    summary_id TEXT,
    project_id TEXT,
    client_id TEXT,
    extracted_at TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Session summaries: topic digests written before raw content is scrubbed
CREATE TABLE IF NOT EXISTS session_summaries (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    summary TEXT,
    topics TEXT,
    user_turns INTEGER NOT NULL DEFAULT 0,
    agent_turns INTEGER NOT NULL DEFAULT 0,
    source_length INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

-- Messages: individual session turns, retention-monitored
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT,
    content TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Purge requests: proposed retention deletions awaiting review
CREATE TABLE IF NOT EXISTS purge_requests (
    id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    flagged_by TEXT,
    reviewed_by TEXT,
    review_note TEXT,
    executed INTEGER NOT NULL DEFAULT 0,
    deleted_count INTEGER NOT NULL DEFAULT 0,
    cutoff TEXT,
    reviewed_at TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Projects: client/project hierarchy owned by the planning subsystem
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    client_id TEXT,
    parent_id TEXT,
    status TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Phases: planning phases belonging to parent projects
CREATE TABLE IF NOT EXISTS phases (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    sequence INTEGER NOT NULL DEFAULT 0,
    status TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Phase items: deliverables inside a phase
CREATE TABLE IF NOT EXISTS phase_items (
    id TEXT PRIMARY KEY,
    phase_id TEXT NOT NULL,
    title TEXT,
    status TEXT,
    sequence INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Structures: component/file structure snapshots, retention-monitored
CREATE TABLE IF NOT EXISTS structures (
    id TEXT PRIMARY KEY,
    title TEXT,
    content TEXT,
    status TEXT,
    project_id TEXT,
    client_id TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Schemas: database schema snapshots, exempt from automatic retention
CREATE TABLE IF NOT EXISTS schemas (
    id TEXT PRIMARY KEY,
    name TEXT,
    content TEXT,
    status TEXT,
    project_id TEXT,
    client_id TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Routing scans
CREATE INDEX IF NOT EXISTS idx_staging_status ON staging_extractions(status);
CREATE INDEX IF NOT EXISTS idx_staging_created_at ON staging_extractions(created_at);
CREATE INDEX IF NOT EXISTS idx_staging_updated_at ON staging_extractions(updated_at);

-- Dedup and classification scans per destination table
CREATE INDEX IF NOT EXISTS idx_todos_project ON todos(project_id);
CREATE INDEX IF NOT EXISTS idx_todos_status ON todos(status);
CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos(created_at);
CREATE INDEX IF NOT EXISTS idx_bugs_project ON bugs(project_id);
CREATE INDEX IF NOT EXISTS idx_bugs_status ON bugs(status);
CREATE INDEX IF NOT EXISTS idx_bugs_created_at ON bugs(created_at);
CREATE INDEX IF NOT EXISTS idx_knowledge_project ON knowledge(project_id);
CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id);
CREATE INDEX IF NOT EXISTS idx_lessons_project ON lessons(project_id);
CREATE INDEX IF NOT EXISTS idx_journal_project ON journal(project_id);
CREATE INDEX IF NOT EXISTS idx_docs_project ON docs(project_id);
CREATE INDEX IF NOT EXISTS idx_conventions_project ON conventions(project_id);
CREATE INDEX IF NOT EXISTS idx_snippets_project ON snippets(project_id);

-- Archive lifecycle scans
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_extracted_at ON sessions(extracted_at);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_session_summaries_session ON session_summaries(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_updated_at ON messages(updated_at);

-- Retention review queues
CREATE INDEX IF NOT EXISTS idx_purge_requests_status ON purge_requests(status);
CREATE INDEX IF NOT EXISTS idx_purge_requests_table ON purge_requests(table_name);

-- Taxonomy lookups
CREATE INDEX IF NOT EXISTS idx_projects_parent ON projects(parent_id);
CREATE INDEX IF NOT EXISTS idx_phases_project ON phases(project_id);
CREATE INDEX IF NOT EXISTS idx_phase_items_phase ON phase_items(phase_id);
`
