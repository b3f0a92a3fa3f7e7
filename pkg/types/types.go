// Package types defines the core data structures for the Scribe cataloging
// system: staging extractions awaiting routing, catalog records, session
// lifecycle state, purge requests, and the bucket taxonomy that binds
// extraction labels to destination tables.
package types

import (
	"maps"
	"time"
)

// Record is a single row in a named catalog table. The catalog is a generic
// record store and per-category payload shapes differ by design, so rows
// travel as key/value maps. Tables with behavior attached (staging, sessions,
// purge requests) have typed wrappers in this package with Record
// conversions.
type Record map[string]any

// ID returns the record's id column, or "" when unset.
func (r Record) ID() string {
	return r.String("id")
}

// String returns the named field as a string, or "" when the field is
// missing or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the named field as an int. Database drivers and JSON decoding
// produce int64 and float64 respectively, so all three widths are accepted.
func (r Record) Int(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the named field as a bool. Integer 0/1 is accepted because
// SQLite has no native boolean column type.
func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

// Time returns the named field as a time.Time. Values may be time.Time from
// the store or RFC3339 strings from a JSON boundary; anything else yields the
// zero time.
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Metadata returns the record's metadata map, or nil when the record has
// none. The returned map is the live value; use CloneMetadata before
// mutating.
func (r Record) Metadata() map[string]any {
	if m, ok := r["metadata"].(map[string]any); ok {
		return m
	}
	return nil
}

// CloneMetadata returns a shallow copy of the record's metadata, never nil.
// Audit fields are appended to existing metadata rather than replacing it,
// so writers must copy before adding keys.
func (r Record) CloneMetadata() map[string]any {
	out := make(map[string]any)
	if m := r.Metadata(); m != nil {
		maps.Copy(out, m)
	}
	return out
}

// Clone returns a shallow copy of the record. Metadata is copied one level
// deep so callers can mutate the clone's metadata safely.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	maps.Copy(out, r)
	if m := r.Metadata(); m != nil {
		out["metadata"] = maps.Clone(m)
	}
	return out
}

// Catalog table names. The routing taxonomy in buckets.go maps extraction
// buckets onto the nine destination tables; the remaining tables support the
// pipeline itself.
const (
	TableStaging          = "staging_extractions"
	TableTodos            = "todos"
	TableBugs             = "bugs"
	TableKnowledge        = "knowledge"
	TableDecisions        = "decisions"
	TableLessons          = "lessons"
	TableJournal          = "journal"
	TableDocs             = "docs"
	TableConventions      = "conventions"
	TableSnippets         = "snippets"
	TableSessions         = "sessions"
	TableSessionSummaries = "session_summaries"
	TableMessages         = "messages"
	TablePurgeRequests    = "purge_requests"
	TableProjects         = "projects"
	TablePhases           = "phases"
	TablePhaseItems       = "phase_items"
	TableStructures       = "structures"
	TableSchemas          = "schemas"
)

// DestinationTables lists the tables the router may write extracted records
// into, in a stable order for reporting.
var DestinationTables = []string{
	TableTodos,
	TableBugs,
	TableKnowledge,
	TableDecisions,
	TableLessons,
	TableJournal,
	TableDocs,
	TableConventions,
	TableSnippets,
}
