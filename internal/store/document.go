package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

var (
	// ErrStale is returned when an update names a version that is no longer
	// current.
	ErrStale = errors.New("stale document version")
	// ErrNotFound is returned by writes against a missing document. Reads
	// return (nil, nil) instead.
	ErrNotFound = errors.New("document not found")
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Filter is one condition of a document query.
type Filter struct {
	clause string
	args   []any
	err    error
}

// jsonPath validates a dotted path before it is inlined into SQL.
func jsonPath(path string) (string, error) {
	if !pathPattern.MatchString(path) {
		return "", fmt.Errorf("invalid document path %q", path)
	}
	return "$." + path, nil
}

// Eq matches documents whose value at path equals v.
func Eq(path string, v any) Filter {
	p, err := jsonPath(path)
	if err != nil {
		return Filter{err: err}
	}
	return Filter{clause: `json_extract(doc, '` + p + `') = ?`, args: []any{v}}
}

// In matches documents whose value at path is one of vs. An empty set
// matches nothing.
func In[T any](path string, vs ...T) Filter {
	p, err := jsonPath(path)
	if err != nil {
		return Filter{err: err}
	}
	if len(vs) == 0 {
		return Filter{clause: `0`}
	}
	args := make([]any, len(vs))
	for i, v := range vs {
		args[i] = v
	}
	return Filter{
		clause: `json_extract(doc, '` + p + `') IN (` + placeholders(len(vs)) + `)`,
		args:   args,
	}
}

// Has matches documents whose array at path contains v.
func Has(path string, v any) Filter {
	p, err := jsonPath(path)
	if err != nil {
		return Filter{err: err}
	}
	return Filter{
		clause: `EXISTS (SELECT 1 FROM json_each(doc, '` + p + `') WHERE value = ?)`,
		args:   []any{v},
	}
}

// HasWhere matches documents whose array of objects at path holds an element
// with element.field = v.
func HasWhere(path, field string, v any) Filter {
	p, err := jsonPath(path)
	if err != nil {
		return Filter{err: err}
	}
	f, err := jsonPath(field)
	if err != nil {
		return Filter{err: err}
	}
	return Filter{
		clause: `EXISTS (SELECT 1 FROM json_each(doc, '` + p + `') AS e WHERE json_extract(e.value, '` + f + `') = ?)`,
		args:   []any{v},
	}
}

// IDIn matches documents by primary key.
func IDIn(ids ...string) Filter {
	if len(ids) == 0 {
		return Filter{clause: `0`}
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return Filter{clause: `id IN (` + placeholders(len(ids)) + `)`, args: args}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func where(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for _, f := range filters {
		if f.err != nil {
			return "", nil, f.err
		}
		clauses = append(clauses, f.clause)
		args = append(args, f.args...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// collection is the JSON document table behind each typed store.
type collection[T any, PT interface {
	*T
	model.Doc
}] struct {
	q     DBTX
	table string
}

const docCols = `doc, version`

func (c collection[T, PT]) scan(scanner interface{ Scan(...any) error }) (PT, error) {
	var raw string
	var version int64
	if err := scanner.Scan(&raw, &version); err != nil {
		return nil, err
	}
	v := PT(new(T))
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", c.table, err)
	}
	v.SetDocVersion(version)
	return v, nil
}

func (c collection[T, PT]) get(ctx context.Context, id string) (PT, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+docCols+` FROM `+c.table+` WHERE id = ?`, id)
	v, err := c.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", c.table, id, err)
	}
	return v, nil
}

func (c collection[T, PT]) find(ctx context.Context, filters ...Filter) ([]PT, error) {
	clause, args, err := where(filters)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table, err)
	}
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+docCols+` FROM `+c.table+clause+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []PT
	for rows.Next() {
		v, err := c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c collection[T, PT]) count(ctx context.Context, filters ...Filter) (int, error) {
	clause, args, err := where(filters)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	var n int
	if err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	return n, nil
}

// create inserts v and sets its version to 1.
func (c collection[T, PT]) create(ctx context.Context, v PT) error {
	if v.DocID() == "" {
		return fmt.Errorf("insert %s: empty id", c.table)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.table, err)
	}
	now := time.Now().UTC()
	_, err = c.q.ExecContext(ctx,
		`INSERT INTO `+c.table+` (id, doc, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		v.DocID(), string(body), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.table, err)
	}
	v.SetDocVersion(1)
	return nil
}

// update replaces the stored document if its version still matches v's,
// then bumps v's version.
func (c collection[T, PT]) update(ctx context.Context, v PT) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.table, err)
	}
	res, err := c.q.ExecContext(ctx,
		`UPDATE `+c.table+` SET doc = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		string(body), time.Now().UTC(), v.DocID(), v.DocVersion(),
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.table, v.DocID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return c.missOrStale(ctx, v.DocID())
	}
	v.SetDocVersion(v.DocVersion() + 1)
	return nil
}

func (c collection[T, PT]) missOrStale(ctx context.Context, id string) error {
	var exists int
	err := c.q.QueryRowContext(ctx, `SELECT 1 FROM `+c.table+` WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s %s: %w", c.table, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check %s %s: %w", c.table, id, err)
	}
	return fmt.Errorf("update %s %s: %w", c.table, id, ErrStale)
}

// save creates v when it has never been stored, otherwise updates it.
func (c collection[T, PT]) save(ctx context.Context, v PT) error {
	if v.DocVersion() == 0 {
		return c.create(ctx, v)
	}
	return c.update(ctx, v)
}

func (c collection[T, PT]) delete(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM `+c.table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", c.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", c.table, id, ErrNotFound)
	}
	return nil
}

func (c collection[T, PT]) deleteWhere(ctx context.Context, filters ...Filter) (int64, error) {
	clause, args, err := where(filters)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.table, err)
	}
	if clause == "" {
		return 0, fmt.Errorf("delete %s: refusing unfiltered delete", c.table)
	}
	res, err := c.q.ExecContext(ctx, `DELETE FROM `+c.table+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.table, err)
	}
	return res.RowsAffected()
}
