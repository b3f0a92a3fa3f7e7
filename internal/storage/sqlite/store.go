package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// timeLayout is RFC3339 UTC with fixed nanosecond width. Constant width
// makes lexicographic comparison of stored timestamps match chronological
// order, which the time-bounded WHERE clauses rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements storage.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// New opens a SQLite catalog store with WAL self-healing. If the initial
// open fails due to stale WAL files left behind by a crashed process, it
// verifies no other process holds them and retries once after removing the
// stale -shm/-wal files.
func New(dsn string) (*Store, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !recoverStaleWAL(dbPath) {
		return nil, err
	}

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// open opens a SQLite database, configures WAL mode, and creates the schema.
func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Callers wait instead of getting an immediate SQLITE_BUSY when the
	// connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: dbPathFromDSN(dsn)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Select returns the records matching q.
func (s *Store) Select(ctx context.Context, table string, q storage.Query) ([]types.Record, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	q.Normalize(spec)

	where, args, err := buildWhere(spec, q)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s, id ASC",
		strings.Join(spec.ColumnNames(), ", "), table, where, q.OrderBy, direction(q.Descending))
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	} else if q.Offset > 0 {
		query += " LIMIT -1"
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		rec, err := scanRecord(spec, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return out, nil
}

// Get retrieves a single record by id.
func (s *Store) Get(ctx context.Context, table, id string) (types.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	recs, err := s.Select(ctx, table, storage.Query{
		Filter: storage.Filter{"id": id},
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs[0], nil
}

// Insert writes a new record, stamping id and timestamps when absent.
func (s *Store) Insert(ctx context.Context, table string, rec types.Record) (types.Record, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record is required", storage.ErrInvalidInput)
	}

	stored := rec.Clone()
	if stored.ID() == "" {
		stored["id"] = uuid.New().String()
	}
	now := time.Now().UTC()
	if stored.Time("created_at").IsZero() && spec.HasColumn("created_at") {
		stored["created_at"] = now
	}
	if stored.Time("updated_at").IsZero() && spec.HasColumn("updated_at") {
		stored["updated_at"] = now
	}

	cols := spec.ColumnNames()
	args := make([]any, 0, len(cols))
	for _, col := range spec.Columns {
		v, err := encodeValue(col, stored[col.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, col.Name, err)
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return stored, nil
}

// Update applies column changes to the record with the given id.
func (s *Store) Update(ctx context.Context, table, id string, changes types.Record) (types.Record, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no changes given", storage.ErrInvalidInput)
	}

	applied := changes.Clone()
	delete(applied, "id")
	if applied.Time("updated_at").IsZero() && spec.HasColumn("updated_at") {
		applied["updated_at"] = time.Now().UTC()
	}

	// Deterministic column order keeps generated SQL stable.
	keys := make([]string, 0, len(applied))
	for k := range applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		col, ok := spec.Column(k)
		if !ok {
			return nil, fmt.Errorf("%w: column %s not in table %s", storage.ErrInvalidInput, k, table)
		}
		v, err := encodeValue(col, applied[k])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, k, err)
		}
		sets = append(sets, k+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result for %s: %w", table, err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}
	return s.Get(ctx, table, id)
}

// Delete removes the records with the given ids.
func (s *Store) Delete(ctx context.Context, table string, ids []string) (int, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, placeholders(len(ids)))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result for %s: %w", table, err)
	}
	return int(affected), nil
}

// Count returns the number of records matching q.
func (s *Store) Count(ctx context.Context, table string, q storage.Query) (int, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	q.Normalize(spec)

	where, args, err := buildWhere(spec, q)
	if err != nil {
		return 0, err
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

var _ storage.Store = (*Store)(nil)

// buildWhere renders a query's constraints as a WHERE clause. Column names
// are validated against the registry, never interpolated from caller input.
func buildWhere(spec *storage.TableSpec, q storage.Query) (string, []any, error) {
	var conds []string
	var args []any

	appendCond := func(name string, op string, v any) error {
		col, ok := spec.Column(name)
		if !ok {
			return fmt.Errorf("%w: column %s not in table %s", storage.ErrInvalidInput, name, spec.Name)
		}
		encoded, err := encodeValue(col, v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", spec.Name, name, err)
		}
		if encoded == nil && op == "=" {
			if col.Kind == storage.ColText {
				conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s = '')", name, name))
			} else {
				conds = append(conds, name+" IS NULL")
			}
			return nil
		}
		conds = append(conds, fmt.Sprintf("%s %s ?", name, op))
		args = append(args, encoded)
		return nil
	}

	for _, name := range sortedKeys(q.Filter) {
		if err := appendCond(name, "=", q.Filter[name]); err != nil {
			return "", nil, err
		}
	}

	for _, name := range sortedInKeys(q.In) {
		values := q.In[name]
		if len(values) == 0 {
			continue
		}
		if !spec.HasColumn(name) {
			return "", nil, fmt.Errorf("%w: column %s not in table %s", storage.ErrInvalidInput, name, spec.Name)
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", name, placeholders(len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}

	for _, name := range q.Null {
		col, ok := spec.Column(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: column %s not in table %s", storage.ErrInvalidInput, name, spec.Name)
		}
		if col.Kind == storage.ColText {
			conds = append(conds, fmt.Sprintf("(%s IS NULL OR %s = '')", name, name))
		} else {
			conds = append(conds, name+" IS NULL")
		}
	}

	for _, name := range sortedTimeKeys(q.Before) {
		if err := appendCond(name, "<", q.Before[name]); err != nil {
			return "", nil, err
		}
	}
	for _, name := range sortedTimeKeys(q.After) {
		if err := appendCond(name, ">=", q.After[name]); err != nil {
			return "", nil, err
		}
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// scanRecord reads one row into a generic record, decoding each column by
// its registered kind. NULL columns are left out of the record entirely.
func scanRecord(spec *storage.TableSpec, rows *sql.Rows) (types.Record, error) {
	holders := make([]any, len(spec.Columns))
	for i := range holders {
		holders[i] = new(any)
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, err
	}

	rec := make(types.Record, len(spec.Columns))
	for i, col := range spec.Columns {
		raw := *(holders[i].(*any))
		if raw == nil {
			continue
		}
		if v, ok := decodeValue(col.Kind, raw); ok {
			rec[col.Name] = v
		}
	}
	return rec, nil
}

// encodeValue converts a record value to its SQL representation. Empty
// strings and zero times are stored as NULL.
func encodeValue(col storage.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Kind {
	case storage.ColText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", storage.ErrInvalidInput, v)
		}
		if s == "" {
			return nil, nil
		}
		return s, nil

	case storage.ColInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
		return nil, fmt.Errorf("%w: expected integer, got %T", storage.ErrInvalidInput, v)

	case storage.ColBool:
		switch b := v.(type) {
		case bool:
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		case int:
			return int64(b), nil
		case int64:
			return b, nil
		}
		return nil, fmt.Errorf("%w: expected bool, got %T", storage.ErrInvalidInput, v)

	case storage.ColTime:
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return nil, nil
			}
			return t.UTC().Format(timeLayout), nil
		case string:
			if t == "" {
				return nil, nil
			}
			parsed, ok := parseTime(t)
			if !ok {
				return nil, fmt.Errorf("%w: unparseable time %q", storage.ErrInvalidInput, t)
			}
			return parsed.Format(timeLayout), nil
		}
		return nil, fmt.Errorf("%w: expected time, got %T", storage.ErrInvalidInput, v)

	case storage.ColJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: unencodable json: %v", storage.ErrInvalidInput, err)
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("%w: unknown column kind %d", storage.ErrInvalidInput, col.Kind)
}

// decodeValue converts a scanned SQL value back to its record form.
func decodeValue(kind storage.ColumnKind, raw any) (any, bool) {
	switch kind {
	case storage.ColText:
		switch v := raw.(type) {
		case string:
			return v, true
		case []byte:
			return string(v), true
		}

	case storage.ColInt:
		if v, ok := raw.(int64); ok {
			return int(v), true
		}

	case storage.ColBool:
		switch v := raw.(type) {
		case int64:
			return v != 0, true
		case bool:
			return v, true
		}

	case storage.ColTime:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), true
		case string:
			if t, ok := parseTime(v); ok {
				return t, true
			}
		case []byte:
			if t, ok := parseTime(string(v)); ok {
				return t, true
			}
		}

	case storage.ColJSON:
		var data []byte
		switch v := raw.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			return nil, false
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			return decoded, true
		}
	}
	return nil, false
}

// parseTime accepts the store's own fixed layout plus the formats other
// tools are likely to have written into the same database.
func parseTime(s string) (time.Time, bool) {
	layouts := []string{
		timeLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func direction(descending bool) string {
	if descending {
		return "DESC"
	}
	return "ASC"
}

func sortedKeys(f storage.Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInKeys(in map[string][]string) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTimeKeys(bounds map[string]time.Time) []string {
	keys := make([]string, 0, len(bounds))
	for k := range bounds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN. Handles bare
// paths and file: URIs; returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}
	return dsn
}

// isRecoverableWALError matches error patterns caused by stale WAL files
// left behind after a crash (SIGKILL, OOM).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// recoverStaleWAL removes -shm/-wal files for the database if they exist and
// no other process holds them open. Returns true if files were removed and a
// retry is worthwhile. Requires lsof; without it we refuse to delete.
func recoverStaleWAL(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	// lsof exits 1 when no process has the files open — that means stale.
	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err == nil && strings.TrimSpace(string(output)) != "" {
		return false
	}

	for _, path := range []string{shmPath, walPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
