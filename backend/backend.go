// Package backend defines the query contract studiocms uses to reach its
// database and the two implementations of it: a PostgREST HTTP client for the
// hosted platform and a database/sql store for self-hosted SQLite or
// PostgreSQL.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Record is a single row keyed by column name.
type Record map[string]any

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIs  Op = "is" // Value must be nil, true or false
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Gte is shorthand for a greater-or-equal filter.
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }

// Order sorts query results by Column.
type Order struct {
	Column    string
	Desc      bool
	NullsLast bool
}

// Query describes a select over a single table.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	Limit   int // 0 means no limit
}

// Backend is the managed database as seen by the handlers. Implementations
// must be safe for concurrent use.
type Backend interface {
	Select(ctx context.Context, q Query) ([]Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	Update(ctx context.Context, table, id string, rec Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Normalized error codes. They follow PostgreSQL/PostgREST so errors coming
// back from the hosted API need no translation.
const (
	CodeUndefinedTable = "42P01"
	CodeSchemaCache    = "PGRST205"
	CodeNoRows         = "PGRST116"
	CodeInvalidText    = "22P02"
)

var (
	// ErrNotFound matches errors for single-row lookups that found nothing.
	ErrNotFound = errors.New("backend: not found")
	// ErrMissingTable matches errors caused by a table that does not exist yet.
	ErrMissingTable = errors.New("backend: missing table")
)

// Error is returned by every Backend implementation for failures reported by
// the database itself.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend error %s (status %d)", e.Code, e.Status)
}

// Is lets errors.Is match the ErrNotFound and ErrMissingTable sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNoRows
	case ErrMissingTable:
		return e.Code == CodeUndefinedTable || e.Code == CodeSchemaCache
	}
	return false
}

func notFound(table, id string) *Error {
	return &Error{
		Status:  406,
		Code:    CodeNoRows,
		Message: "JSON object requested, multiple (or no) rows returned",
		Details: fmt.Sprintf("no row in %s with id %s", table, id),
	}
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("backend: invalid identifier %q", name)
	}
	return nil
}

func (q Query) validate() error {
	if err := checkIdent(q.Table); err != nil {
		return err
	}
	for _, f := range q.Filters {
		if err := checkIdent(f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIs:
		default:
			return fmt.Errorf("backend: unsupported operator %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if err := checkIdent(o.Column); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("backend: negative limit %d", q.Limit)
	}
	return nil
}

// Decode converts a Record into v through its JSON representation.
func Decode(rec Record, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeAll converts records into a slice of T.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := Decode(rec, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
