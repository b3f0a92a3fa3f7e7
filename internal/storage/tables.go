package storage

import "github.com/carverlabs/scribe/pkg/types"

// ColumnKind describes how a column value is encoded in SQL and decoded back
// into a generic record.
type ColumnKind int

const (
	// ColText is a plain string column; "" round-trips as NULL
	ColText ColumnKind = iota

	// ColInt is an integer column
	ColInt

	// ColBool is a boolean column (INTEGER 0/1 on SQLite)
	ColBool

	// ColTime is a timestamp column, UTC, RFC3339 text on SQLite
	ColTime

	// ColJSON is a JSON document column (metadata maps, string lists)
	ColJSON
)

// Column is one column in a registered catalog table.
type Column struct {
	Name string
	Kind ColumnKind
}

// TableSpec fixes a catalog table's column set. The generic store builds its
// SQL from the registry, so a record key outside the registered columns is
// dropped rather than interpolated, and filter/sort columns are whitelisted
// here.
type TableSpec struct {
	Name    string
	Columns []Column
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableSpec) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Column looks up a column by name.
func (t *TableSpec) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the table's column names in declaration order.
func (t *TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// common column runs shared by most catalog tables
var (
	provenanceColumns = []Column{
		{"project_id", ColText},
		{"client_id", ColText},
		{"source_session_id", ColText},
	}
	tailColumns = []Column{
		{"metadata", ColJSON},
		{"created_at", ColTime},
		{"updated_at", ColTime},
	}
)

func workItemColumns(extra ...Column) []Column {
	cols := []Column{
		{"id", ColText},
		{"title", ColText},
	}
	cols = append(cols, extra...)
	cols = append(cols, Column{"status", ColText})
	cols = append(cols, provenanceColumns...)
	cols = append(cols,
		Column{"phase_id", ColText},
		Column{"consolidated_into", ColText},
	)
	return append(cols, tailColumns...)
}

func contentColumns(extra ...Column) []Column {
	cols := []Column{
		{"id", ColText},
		{"title", ColText},
		{"content", ColText},
	}
	cols = append(cols, extra...)
	cols = append(cols, Column{"status", ColText})
	cols = append(cols, provenanceColumns...)
	cols = append(cols, Column{"consolidated_into", ColText})
	return append(cols, tailColumns...)
}

// tableRegistry is the closed set of catalog tables. Select/Insert/Update/
// Delete reject any table outside it.
var tableRegistry = map[string]*TableSpec{
	types.TableStaging: {
		Name: types.TableStaging,
		Columns: append([]Column{
			{"id", ColText},
			{"bucket", ColText},
			{"title", ColText},
			{"content", ColText},
			{"summary", ColText},
			{"status", ColText},
			{"project_id", ColText},
			{"client_id", ColText},
			{"source_session_id", ColText},
		}, tailColumns...),
	},

	types.TableTodos: {
		Name: types.TableTodos,
		Columns: workItemColumns(
			Column{"description", ColText},
			Column{"priority", ColText},
		),
	},
	types.TableBugs: {
		Name: types.TableBugs,
		Columns: workItemColumns(
			Column{"description", ColText},
			Column{"severity", ColText},
		),
	},
	types.TableKnowledge: {
		Name: types.TableKnowledge,
		Columns: contentColumns(
			Column{"summary", ColText},
			Column{"type", ColText},
		),
	},
	types.TableDecisions: {
		Name:    types.TableDecisions,
		Columns: contentColumns(),
	},
	types.TableLessons: {
		Name:    types.TableLessons,
		Columns: contentColumns(),
	},
	types.TableJournal: {
		Name: types.TableJournal,
		Columns: contentColumns(
			Column{"entry_type", ColText},
		),
	},
	types.TableDocs: {
		Name: types.TableDocs,
		Columns: contentColumns(
			Column{"doc_type", ColText},
		),
	},
	types.TableConventions: {
		Name: types.TableConventions,
		Columns: append([]Column{
			{"id", ColText},
			{"name", ColText},
			{"content", ColText},
			{"convention_type", ColText},
			{"status", ColText},
			{"project_id", ColText},
			{"client_id", ColText},
			{"source_session_id", ColText},
			{"consolidated_into", ColText},
		}, tailColumns...),
	},
	types.TableSnippets: {
		Name: types.TableSnippets,
		Columns: contentColumns(
			Column{"context", ColText},
		),
	},

	types.TableSessions: {
		Name: types.TableSessions,
		Columns: append([]Column{
			{"id", ColText},
			{"title", ColText},
			{"raw_content", ColText},
			{"status", ColText},
			{"summary_id", ColText},
			{"project_id", ColText},
			{"client_id", ColText},
			{"extracted_at", ColTime},
		}, tailColumns...),
	},
	types.TableSessionSummaries: {
		Name: types.TableSessionSummaries,
		Columns: []Column{
			{"id", ColText},
			{"session_id", ColText},
			{"summary", ColText},
			{"topics", ColJSON},
			{"user_turns", ColInt},
			{"agent_turns", ColInt},
			{"source_length", ColInt},
			{"created_at", ColTime},
		},
	},
	types.TableMessages: {
		Name: types.TableMessages,
		Columns: []Column{
			{"id", ColText},
			{"session_id", ColText},
			{"role", ColText},
			{"content", ColText},
			{"created_at", ColTime},
			{"updated_at", ColTime},
		},
	},

	types.TablePurgeRequests: {
		Name: types.TablePurgeRequests,
		Columns: []Column{
			{"id", ColText},
			{"table_name", ColText},
			{"status", ColText},
			{"flagged_by", ColText},
			{"reviewed_by", ColText},
			{"review_note", ColText},
			{"executed", ColBool},
			{"deleted_count", ColInt},
			{"cutoff", ColTime},
			{"reviewed_at", ColTime},
			{"metadata", ColJSON},
			{"created_at", ColTime},
			{"updated_at", ColTime},
		},
	},

	types.TableProjects: {
		Name: types.TableProjects,
		Columns: []Column{
			{"id", ColText},
			{"name", ColText},
			{"client_id", ColText},
			{"parent_id", ColText},
			{"status", ColText},
			{"metadata", ColJSON},
			{"created_at", ColTime},
			{"updated_at", ColTime},
		},
	},
	types.TablePhases: {
		Name: types.TablePhases,
		Columns: []Column{
			{"id", ColText},
			{"project_id", ColText},
			{"name", ColText},
			{"sequence", ColInt},
			{"status", ColText},
			{"created_at", ColTime},
			{"updated_at", ColTime},
		},
	},
	types.TablePhaseItems: {
		Name: types.TablePhaseItems,
		Columns: []Column{
			{"id", ColText},
			{"phase_id", ColText},
			{"title", ColText},
			{"status", ColText},
			{"sequence", ColInt},
			{"created_at", ColTime},
			{"updated_at", ColTime},
		},
	},

	types.TableStructures: {
		Name: types.TableStructures,
		Columns: append([]Column{
			{"id", ColText},
			{"title", ColText},
			{"content", ColText},
			{"status", ColText},
			{"project_id", ColText},
			{"client_id", ColText},
		}, tailColumns...),
	},
	types.TableSchemas: {
		Name: types.TableSchemas,
		Columns: append([]Column{
			{"id", ColText},
			{"name", ColText},
			{"content", ColText},
			{"status", ColText},
			{"project_id", ColText},
			{"client_id", ColText},
		}, tailColumns...),
	},
}

// Spec returns the registry entry for a table, or nil for unknown tables.
func Spec(table string) *TableSpec {
	return tableRegistry[table]
}

// KnownTable reports whether the table is in the catalog registry.
func KnownTable(table string) bool {
	_, ok := tableRegistry[table]
	return ok
}

// Tables returns all registered table names, unordered.
func Tables() []string {
	out := make([]string, 0, len(tableRegistry))
	for name := range tableRegistry {
		out = append(out, name)
	}
	return out
}
