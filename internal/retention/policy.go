package retention

import (
	"fmt"
	"sort"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// Policy maps table names to retention windows in days. Tables absent from
// the policy are never scanned or flagged.
type Policy map[string]int

// DefaultPolicy returns the stock retention windows. Schema definitions are
// deliberately absent: they describe the data rather than accumulate with it,
// and deleting them would orphan everything else.
func DefaultPolicy() Policy {
	return Policy{
		types.TableSessions:   30,
		types.TableMessages:   30,
		types.TableKnowledge:  90,
		types.TableDecisions:  180,
		types.TableDocs:       365,
		types.TableTodos:      90,
		types.TableStructures: 365,
	}
}

// exemptTables can never carry a retention window, not even by configuration.
var exemptTables = map[string]struct{}{
	types.TableSchemas: {},
}

// Exempt reports whether a table is excluded from retention outright.
func Exempt(table string) bool {
	_, ok := exemptTables[table]
	return ok
}

// Window returns the retention window for a table. Exempt tables report no
// window regardless of what the policy says.
func (p Policy) Window(table string) (int, bool) {
	if Exempt(table) {
		return 0, false
	}
	days, ok := p[table]
	if !ok || days <= 0 {
		return 0, false
	}
	return days, true
}

// Tables returns the policy's table names in stable order.
func (p Policy) Tables() []string {
	tables := make([]string, 0, len(p))
	for t := range p {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Validate rejects policies that could not have been intended: unknown
// tables, non-positive windows, or a window on an exempt table.
func (p Policy) Validate() error {
	for table, days := range p {
		if storage.Spec(table) == nil {
			return fmt.Errorf("retention policy names unknown table %q", table)
		}
		if Exempt(table) {
			return fmt.Errorf("table %q is exempt from retention", table)
		}
		if days <= 0 {
			return fmt.Errorf("retention window for %q must be positive, got %d", table, days)
		}
	}
	return nil
}
