// Package sqlstore implements store.Store over MySQL or SQLite through sqlx.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/at-ishikawa/lessonquiz/internal/database"
	"github.com/at-ishikawa/lessonquiz/internal/store"
)

// Table describes how records of one collection map onto SQL columns.
type Table struct {
	PrimaryKey  string
	JSONColumns []string
	TimeColumns []string
}

// DefaultTables matches schemas/migrations.
var DefaultTables = map[string]Table{
	store.CollectionHearts: {
		PrimaryKey:  "learner_id",
		TimeColumns: []string{"refill_at", "updated_at"},
	},
	store.CollectionAttempts: {
		PrimaryKey:  "id",
		JSONColumns: []string{"question_ids", "wrong_question_ids", "answers"},
		TimeColumns: []string{"started_at", "completed_at", "updated_at"},
	},
	store.CollectionRewards: {
		PrimaryKey:  "id",
		TimeColumns: []string{"granted_at", "applied_at"},
	},
	store.CollectionProfiles: {
		PrimaryKey:  "id",
		JSONColumns: []string{"rewarded_lessons"},
		TimeColumns: []string{"updated_at"},
	},
	store.CollectionAchievements: {
		PrimaryKey:  "id",
		TimeColumns: []string{"awarded_at"},
	},
	store.CollectionLessons:  {PrimaryKey: "id"},
	store.CollectionSections: {PrimaryKey: "id"},
	store.CollectionSectionProgress: {
		PrimaryKey:  "id",
		TimeColumns: []string{"completed_at"},
	},
	store.CollectionQuizzes: {PrimaryKey: "id"},
	store.CollectionQuestions: {
		PrimaryKey:  "id",
		JSONColumns: []string{"options", "correct_answer"},
	},
}

// Store is a SQL-backed store.Store.
type Store struct {
	db      *sqlx.DB
	dialect database.Dialect
	tables  map[string]Table
}

// New creates a Store. tables nil selects DefaultTables.
func New(db *sqlx.DB, dialect database.Dialect, tables map[string]Table) *Store {
	if tables == nil {
		tables = DefaultTables
	}
	return &Store{db: db, dialect: dialect, tables: tables}
}

func (s *Store) table(collection string) (Table, error) {
	if err := store.ValidateIdentifier(collection); err != nil {
		return Table{}, err
	}
	t, ok := s.tables[collection]
	if !ok {
		return Table{}, fmt.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

// Find selects the rows matching query.
func (s *Store) Find(ctx context.Context, collection string, query store.Query) ([]store.Record, error) {
	t, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(query.Filters)
	q := "SELECT * FROM " + collection + where + buildOrder(query.Order)
	if query.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	return s.selectRows(ctx, s.db, t, q, args)
}

// Insert inserts record and returns the stored row.
func (s *Store) Insert(ctx context.Context, collection string, record store.Record) (store.Record, error) {
	t, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, fmt.Errorf("insert into %s: empty record", collection)
	}

	columns := sortedColumns(record)
	args := make([]any, len(columns))
	for i, c := range columns {
		if err := store.ValidateIdentifier(c); err != nil {
			return nil, err
		}
		v, err := t.toSQL(c, record[c])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", collection, strings.Join(columns, ", "), placeholders(len(columns)))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, classify(err))
	}

	key, ok := record[t.PrimaryKey]
	if !ok {
		return record, nil
	}
	rows, err := s.selectRows(ctx, s.db, t, "SELECT * FROM "+collection+" WHERE "+t.PrimaryKey+" = ?", []any{key})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s: row %v not readable after insert", collection, key)
	}
	return rows[0], nil
}

// Update locks the rows matching filters, applies patch and returns them re-read.
// No match yields an empty slice.
func (s *Store) Update(ctx context.Context, collection string, filters []store.Condition, patch store.Record) ([]store.Record, error) {
	t, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateConditions(filters); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("update %s: empty patch", collection)
	}

	columns := sortedColumns(patch)
	assignments := make([]string, len(columns))
	setArgs := make([]any, len(columns))
	for i, c := range columns {
		if err := store.ValidateIdentifier(c); err != nil {
			return nil, err
		}
		assignments[i] = c + " = ?"
		v, err := t.toSQL(c, patch[c])
		if err != nil {
			return nil, err
		}
		setArgs[i] = v
	}

	var out []store.Record
	err = database.RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		where, args := buildWhere(filters)
		lock := "SELECT " + t.PrimaryKey + " FROM " + collection + where
		if s.dialect == database.DialectMySQL {
			lock += " FOR UPDATE"
		}
		keys, err := queryKeys(ctx, tx, lock, args)
		if err != nil {
			return fmt.Errorf("lock %s: %w", collection, err)
		}
		if len(keys) == 0 {
			return nil
		}

		inKeys := placeholders(len(keys))
		update := "UPDATE " + collection + " SET " + strings.Join(assignments, ", ") + " WHERE " + t.PrimaryKey + " IN (" + inKeys + ")"
		if _, err := tx.ExecContext(ctx, update, append(setArgs, keys...)...); err != nil {
			return fmt.Errorf("update %s: %w", collection, classify(err))
		}

		reread := "SELECT * FROM " + collection + " WHERE " + t.PrimaryKey + " IN (" + inKeys + ")"
		out, err = s.selectRows(ctx, tx, t, reread, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.Record{}
	}
	return out, nil
}

func (s *Store) selectRows(ctx context.Context, q sqlx.QueryerContext, t Table, query string, args []any) ([]store.Record, error) {
	query, args, err := expandIn(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", classify(err))
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("rows.MapScan > %w", err)
		}
		record, err := t.fromSQL(row)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err > %w", err)
	}
	return out, nil
}

func queryKeys(ctx context.Context, tx *sqlx.Tx, query string, args []any) ([]any, error) {
	query, args, err := expandIn(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var keys []any
	for rows.Next() {
		var key any
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("rows.Scan > %w", err)
		}
		if b, ok := key.([]byte); ok {
			key = string(b)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// expandIn rewrites IN (?) placeholders bound to slices.
func expandIn(query string, args []any) (string, []any, error) {
	hasSlice := false
	for _, a := range args {
		if _, ok := a.([]any); ok {
			hasSlice = true
			break
		}
	}
	if !hasSlice {
		return query, args, nil
	}
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("sqlx.In > %w", err)
	}
	return expanded, expandedArgs, nil
}

func buildWhere(filters []store.Condition) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		switch f.Op {
		case store.OpEq:
			clauses = append(clauses, f.Column+" = ?")
			args = append(args, sqlValue(f.Value))
		case store.OpIn:
			clauses = append(clauses, f.Column+" IN (?)")
			values := make([]any, len(f.Values))
			for i, v := range f.Values {
				values[i] = sqlValue(v)
			}
			args = append(args, values)
		case store.OpIsNull:
			clauses = append(clauses, f.Column+" IS NULL")
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildOrder(orders []store.Order) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		parts[i] = o.Column + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedColumns(r store.Record) []string {
	columns := make([]string, 0, len(r))
	for c := range r {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

func sqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t Table) toSQL(column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case contains(t.JSONColumns, column):
		switch x := v.(type) {
		case json.RawMessage:
			return string(x), nil
		case []byte:
			return string(x), nil
		case string:
			return x, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", column, err)
		}
		return string(b), nil
	case contains(t.TimeColumns, column):
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case *time.Time:
			if x == nil {
				return nil, nil
			}
			return x.UTC(), nil
		case string:
			parsed, err := parseTime(x)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", column, err)
			}
			return parsed, nil
		}
	}
	return sqlValue(v), nil
}

func (t Table) fromSQL(row map[string]any) (store.Record, error) {
	record := make(store.Record, len(row))
	for column, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		switch {
		case v == nil:
		case contains(t.JSONColumns, column):
			if s, ok := v.(string); ok {
				if !json.Valid([]byte(s)) {
					return nil, fmt.Errorf("column %s holds invalid JSON", column)
				}
				v = json.RawMessage(s)
			}
		case contains(t.TimeColumns, column):
			if s, ok := v.(string); ok {
				parsed, err := parseTime(s)
				if err != nil {
					return nil, fmt.Errorf("decode %s: %w", column, err)
				}
				v = parsed
			}
		}
		record[column] = v
	}
	return record, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// classify maps driver errors onto store.ErrConflict and store.ErrPermissionDenied.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case 1142, 1143, 1044:
			return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
		}
		return err
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
		}
		return err
	}
	return err
}
