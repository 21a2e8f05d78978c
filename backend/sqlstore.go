package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// TimeLayout is how timestamps are stored in SQLite. Fixed-width
// milliseconds keep lexicographic and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Columns whose values are stored as JSON text.
var jsonColumns = map[string]bool{"tags": true, "gallery": true, "metrics": true}

// Columns stored as 0/1 integers in SQLite.
var boolColumns = map[string]bool{"is_featured": true}

// SQLStore implements Backend on database/sql for self-hosted SQLite or
// PostgreSQL databases.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Backend = (*SQLStore)(nil)

// OpenSQL opens the database for driver ("sqlite" or "postgres"). For SQLite
// the data directory is created and the connection tuned for WAL; the schema
// is not touched, see Migrator.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// WAL lets readers proceed during writes; the busy timeout makes
		// writers wait instead of failing with SQLITE_BUSY.
		if _, err := db.Exec(`
			PRAGMA journal_mode=WAL;
			PRAGMA busy_timeout=5000;
			PRAGMA synchronous=NORMAL;
			PRAGMA foreign_keys=ON;
		`); err != nil {
			db.Close()
			return nil, err
		}
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
		return &SQLStore{db: db, driver: driver}, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
		return &SQLStore{db: db, driver: driver}, nil
	default:
		return nil, fmt.Errorf("backend: unsupported sql driver %q", driver)
	}
}

// DB exposes the underlying handle for migrations.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Driver reports which SQL driver the store was opened with.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Select runs q and returns every matching row.
func (s *SQLStore) Select(ctx context.Context, q Query) ([]Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(`SELECT * FROM "` + q.Table + `"`)
	args, err := s.where(&b, q.Filters, 1)
	if err != nil {
		return nil, err
	}
	for i, o := range q.Order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(`"` + o.Column + `"`)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
		if o.NullsLast {
			b.WriteString(" NULLS LAST")
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()
	return s.scan(rows)
}

// Get returns the row with the given id.
func (s *SQLStore) Get(ctx context.Context, table, id string) (Record, error) {
	recs, err := s.Select(ctx, Query{Table: table, Filters: []Filter{Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, notFound(table, id)
	}
	return recs[0], nil
}

// Count returns the number of rows matching filters.
func (s *SQLStore) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	if err := (Query{Table: table, Filters: filters}).validate(); err != nil {
		return 0, err
	}
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM "` + table + `"`)
	args, err := s.where(&b, filters, 1)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&n); err != nil {
		return 0, s.wrap(err)
	}
	return int(n), nil
}

// Insert stores rec, assigning a UUID when no id is given, and returns the
// stored row including column defaults.
func (s *SQLStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	row := make(Record, len(rec)+1)
	for k, v := range rec {
		row[k] = v
	}
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	cols := sortedColumns(row)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		v, err := s.encode(c, row[c])
		if err != nil {
			return nil, err
		}
		placeholders[i] = s.bind(i + 1)
		args[i] = v
	}
	query := fmt.Sprintf(`INSERT INTO "%s" ("%s") VALUES (%s) RETURNING *`,
		table, strings.Join(cols, `", "`), strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()
	recs, err := s.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", table)
	}
	return recs[0], nil
}

// Update writes the columns in rec to the row with the given id. The id
// column itself is never rewritten.
func (s *SQLStore) Update(ctx context.Context, table, id string, rec Record) (Record, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	cols := sortedColumns(rec)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		if c == "id" {
			continue
		}
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		v, err := s.encode(c, rec[c])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(`"%s" = %s`, c, s.bind(len(args))))
	}
	if len(sets) == 0 {
		return s.Get(ctx, table, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE "%s" SET %s WHERE "id" = %s RETURNING *`,
		table, strings.Join(sets, ", "), s.bind(len(args)))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()
	recs, err := s.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, notFound(table, id)
	}
	return recs[0], nil
}

// Delete removes the row with the given id.
func (s *SQLStore) Delete(ctx context.Context, table, id string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE "id" = %s`, table, s.bind(1)), id)
	if err != nil {
		return s.wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(table, id)
	}
	return nil
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func (s *SQLStore) where(b *strings.Builder, filters []Filter, next int) ([]any, error) {
	var args []any
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		col := `"` + f.Column + `"`
		if f.Op == OpIs {
			switch f.Value {
			case nil:
				b.WriteString(col + " IS NULL")
				continue
			case true, false:
			default:
				return nil, fmt.Errorf("backend: is filter on %s needs nil or bool", f.Column)
			}
		}
		op, ok := sqlOps[f.Op]
		if !ok {
			op = "="
		}
		v, err := s.encode(f.Column, f.Value)
		if err != nil {
			return nil, err
		}
		b.WriteString(col + " " + op + " " + s.bind(next))
		next++
		args = append(args, v)
	}
	return args, nil
}

func (s *SQLStore) bind(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStore) encode(column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if jsonColumns[column] {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", column, err)
		}
		if string(b) == "null" {
			return nil, nil
		}
		return string(b), nil
	}
	switch x := v.(type) {
	case time.Time:
		if s.driver == DriverSQLite {
			return x.UTC().Format(TimeLayout), nil
		}
		return x.UTC(), nil
	case bool:
		if s.driver == DriverSQLite {
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return x, nil
	}
	return v, nil
}

func (s *SQLStore) scan(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			v, err := decodeValue(c, vals[i])
			if err != nil {
				return nil, err
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}
	return out, nil
}

func decodeValue(column string, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(TimeLayout), nil
	case string:
		if jsonColumns[column] {
			var out any
			if err := json.Unmarshal([]byte(x), &out); err != nil {
				return nil, fmt.Errorf("decode %s: %w", column, err)
			}
			return out, nil
		}
	case int64:
		if boolColumns[column] {
			return x != 0, nil
		}
	}
	return v, nil
}

// wrap translates driver errors into *Error so callers can match the
// missing-table condition regardless of the database in use.
func (s *SQLStore) wrap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Code: pgErr.Code, Message: pgErr.Message, Details: pgErr.Detail, Hint: pgErr.Hint}
	}
	if strings.Contains(err.Error(), "no such table") {
		return &Error{Code: CodeUndefinedTable, Message: err.Error()}
	}
	return err
}

func sortedColumns(rec Record) []string {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
