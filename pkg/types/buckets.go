package types

import (
	"sort"
	"strings"
)

// Route describes where a staging bucket lands in the catalog: the
// destination table, the initial status the router writes, and an optional
// subtype value for tables that fan multiple buckets into one table (the
// payload builder maps Kind onto the table's own subtype field name).
type Route struct {
	// Table is the destination catalog table
	Table string `json:"table"`

	// Status is the initial record status written by the router
	Status string `json:"status"`

	// Kind is the bucket-derived subtype value, "" for tables without one
	Kind string `json:"kind,omitempty"`
}

// Destination record status constants. Bugs and todos carry working statuses
// the Status Updater later reconciles; everything else enters as a live
// catalog entry.
const (
	RecordStatusOpen       = "open"       // bugs filed from the open bucket
	RecordStatusFixed      = "fixed"      // bugs filed from the fixed bucket
	RecordStatusUnassigned = "unassigned" // todos awaiting phase assignment
	RecordStatusActive     = "active"     // live catalog entries
	RecordStatusLogged     = "logged"     // journal entries

	// RecordStatusResolved and RecordStatusCompleted are the canonical
	// terminal statuses the Status Updater normalizes done-vocabulary into
	RecordStatusResolved  = "resolved"  // bugs
	RecordStatusCompleted = "completed" // todos

	// RecordStatusConsolidated marks a duplicate folded into a master
	// record; the record stays queryable and is never deleted
	RecordStatusConsolidated = "consolidated"
)

// bucketRoutes is the closed routing taxonomy. Bucket labels arrive verbatim
// from the extraction stage; anything outside this set terminalizes as error
// so taxonomy drift surfaces in the staging table instead of spreading into
// the catalog.
var bucketRoutes = map[string]Route{
	"Bugs Open":  {Table: TableBugs, Status: RecordStatusOpen},
	"Bugs Fixed": {Table: TableBugs, Status: RecordStatusFixed},
	"Todos":      {Table: TableTodos, Status: RecordStatusUnassigned},

	"Journal":  {Table: TableJournal, Status: RecordStatusLogged, Kind: "journal"},
	"Work Log": {Table: TableJournal, Status: RecordStatusLogged, Kind: "worklog"},

	"Decisions": {Table: TableDecisions, Status: RecordStatusActive},
	"Lessons":   {Table: TableLessons, Status: RecordStatusActive},

	"System Breakdown": {Table: TableDocs, Status: RecordStatusActive, Kind: "system_breakdown"},
	"How-To Guide":     {Table: TableDocs, Status: RecordStatusActive, Kind: "howto"},
	"Schematic":        {Table: TableDocs, Status: RecordStatusActive, Kind: "schematic"},
	"Reference":        {Table: TableDocs, Status: RecordStatusActive, Kind: "reference"},

	"Naming Conventions": {Table: TableConventions, Status: RecordStatusActive, Kind: "naming"},
	"File Structure":     {Table: TableConventions, Status: RecordStatusActive, Kind: "file_structure"},
	"Database Patterns":  {Table: TableConventions, Status: RecordStatusActive, Kind: "database"},
	"API Patterns":       {Table: TableConventions, Status: RecordStatusActive, Kind: "api"},
	"Component Patterns": {Table: TableConventions, Status: RecordStatusActive, Kind: "component"},

	"Ideas":            {Table: TableKnowledge, Status: RecordStatusActive, Kind: "idea"},
	"Quirks & Gotchas": {Table: TableKnowledge, Status: RecordStatusActive, Kind: "quirk"},
	"Other":            {Table: TableKnowledge, Status: RecordStatusActive, Kind: "general"},

	"Snippets": {Table: TableSnippets, Status: RecordStatusActive},
}

// RouteForBucket resolves a bucket label to its route. Labels are matched
// after trimming surrounding whitespace; case and interior spacing must
// match the taxonomy exactly.
func RouteForBucket(bucket string) (Route, bool) {
	route, ok := bucketRoutes[strings.TrimSpace(bucket)]
	return route, ok
}

// Buckets returns all known bucket labels in sorted order.
func Buckets() []string {
	out := make([]string, 0, len(bucketRoutes))
	for b := range bucketRoutes {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// OpenishStatuses lists the statuses treated as "still open" when the phase
// classifier picks assignable records and the Status Updater searches for
// completion candidates. "pending" is a legacy synonym for unassigned that
// older todo writers produced.
var OpenishStatuses = []string{
	RecordStatusOpen,
	RecordStatusUnassigned,
	RecordStatusActive,
	"pending",
	"in_progress",
}

// DoneStatuses lists the vocabulary recognized as "this item is finished".
// The Status Updater normalizes these to the canonical terminal status of
// the record's table.
var DoneStatuses = []string{
	"done",
	"fixed",
	"resolved",
	"complete",
	"completed",
	"closed",
}

// CanonicalDoneStatus returns the canonical terminal status for a table, or
// "" when the table has no done-vocabulary normalization (journal entries and
// reference material have no completion semantics).
func CanonicalDoneStatus(table string) string {
	switch table {
	case TableBugs:
		return RecordStatusResolved
	case TableTodos:
		return RecordStatusCompleted
	}
	return ""
}

// IsDoneStatus reports whether a status belongs to the done vocabulary.
func IsDoneStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, d := range DoneStatuses {
		if s == d {
			return true
		}
	}
	return false
}
