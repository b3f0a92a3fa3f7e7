package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL catalog store, verifies connectivity, and creates
// the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect (DSN: %s): %w", storage.SanitizeDSN(dsn), err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TruncateForTest removes all rows from the given table. Defined in the
// package (not the _test file) so integration tests in postgres_test can
// reach the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context, table string) error {
	if !storage.KnownTable(table) {
		return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
		return fmt.Errorf("postgres: failed to truncate %s: %w", table, err)
	}
	return nil
}

// Select returns the records matching q.
func (s *Store) Select(ctx context.Context, table string, q storage.Query) ([]types.Record, error) {
	spec := storage.Spec(table)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	q.Normalize(spec)

	where, args, err := buildWhere(spec, q, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s, id ASC",
		strings.Join(spec.ColumnNames(), ", "), table, where, q.OrderBy, direction(q.Descending))
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
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
	marks := make([]string, 0, len(cols))
	for i, col := range spec.Columns {
		v, err := encodeValue(col, stored[col.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, col.Name, err)
		}
		args = append(args, v)
		marks = append(marks, fmt.Sprintf("$%d", i+1))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
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

	keys := make([]string, 0, len(applied))
	for k := range applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		col, ok := spec.Column(k)
		if !ok {
			return nil, fmt.Errorf("%w: column %s not in table %s", storage.ErrInvalidInput, k, table)
		}
		v, err := encodeValue(col, applied[k])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, k, err)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(keys)+1)
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
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, strings.Join(marks, ", "))
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

	where, args, err := buildWhere(spec, q, 1)
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

// buildWhere renders a query's constraints as a WHERE clause with numbered
// placeholders starting at next. Column names are validated against the
// registry, never interpolated from caller input.
func buildWhere(spec *storage.TableSpec, q storage.Query, next int) (string, []any, error) {
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
		conds = append(conds, fmt.Sprintf("%s %s $%d", name, op, next))
		args = append(args, encoded)
		next++
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
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = fmt.Sprintf("$%d", next)
			args = append(args, v)
			next++
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", name, strings.Join(marks, ", ")))
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
			return b, nil
		case int:
			return b != 0, nil
		case int64:
			return b != 0, nil
		}
		return nil, fmt.Errorf("%w: expected bool, got %T", storage.ErrInvalidInput, v)

	case storage.ColTime:
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return nil, nil
			}
			return t.UTC(), nil
		case string:
			if t == "" {
				return nil, nil
			}
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("%w: unparseable time %q", storage.ErrInvalidInput, t)
			}
			return parsed.UTC(), nil
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
		if v, ok := raw.(bool); ok {
			return v, true
		}

	case storage.ColTime:
		if v, ok := raw.(time.Time); ok {
			return v.UTC(), true
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
