package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// dialect describes how a driver connects and how a query is bounded.
type dialect struct {
	driver string
	dsn    string
	// bound wraps q so at most limit rows come back.
	bound func(q string, limit int) string
}

func limitBound(q string, limit int) string {
	return wrapQuery("*", q, "LIMIT "+strconv.Itoa(limit))
}

func topBound(q string, limit int) string {
	return wrapQuery("TOP "+strconv.Itoa(limit)+" *", q, "")
}

// sqlBackend implements Backend over database/sql for every supported driver.
type sqlBackend struct {
	d  dialect
	db *sql.DB
}

func (b *sqlBackend) Connect(ctx context.Context) error {
	db, err := sql.Open(b.d.driver, b.d.dsn)
	if err != nil {
		return fmt.Errorf("dataset: open %s: %w", b.d.driver, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("dataset: connect %s: %w", b.d.driver, err)
	}
	b.db = db
	return nil
}

func (b *sqlBackend) DescribeColumns(ctx context.Context, query string) ([]Column, error) {
	if b.db == nil {
		return nil, ErrNotConnected
	}
	rows, err := b.db.QueryContext(ctx, b.d.bound(query, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := columnsOf(rows)
	if err != nil {
		return nil, err
	}
	return cols, rows.Err()
}

func (b *sqlBackend) PreviewRows(ctx context.Context, query string, limit int) ([]Row, error) {
	if b.db == nil {
		return nil, ErrNotConnected
	}
	rows, err := b.db.QueryContext(ctx, b.d.bound(query, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, limit)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (b *sqlBackend) CountRows(ctx context.Context, query string) (int64, error) {
	if b.db == nil {
		return 0, ErrNotConnected
	}
	var n int64
	if err := b.db.QueryRowContext(ctx, wrapQuery("COUNT(*)", query, "")).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *sqlBackend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func columnsOf(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(types))
	for _, ct := range types {
		native := ct.DatabaseTypeName()
		cols = append(cols, Column{Name: ct.Name(), Type: MapType(native), NativeType: native})
	}
	return cols, nil
}

// normalize turns driver byte slices into strings so rows encode as readable JSON.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
