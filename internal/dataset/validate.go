package dataset

import (
	"context"
	"errors"
)

const (
	DefaultPreviewLimit = 10
	MaxPreviewLimit     = 100
)

// Result is the outcome of a successful dataset validation.
type Result struct {
	Columns  []Column `json:"columns"`
	Preview  []Row    `json:"preview"`
	RowCount int64    `json:"rowCount"`
}

// Validate checks src.Query, connects to the source, and returns its columns, up to limit preview rows and
// the total row count. limit is clamped to [1, MaxPreviewLimit]; zero means DefaultPreviewLimit.
func Validate(ctx context.Context, src Source, limit int) (*Result, error) {
	b, err := Open(src)
	if err != nil {
		return nil, err
	}
	return ValidateWith(ctx, b, src.Query, limit)
}

// ValidateWith runs the validation steps on an unconnected backend and closes it afterwards.
func ValidateWith(ctx context.Context, b Backend, query string, limit int) (res *Result, err error) {
	q, err := CheckQuery(query)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultPreviewLimit
	case limit > MaxPreviewLimit:
		limit = MaxPreviewLimit
	}
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, b.Close())
		if err != nil {
			res = nil
		}
	}()

	cols, err := b.DescribeColumns(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := b.PreviewRows(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	n, err := b.CountRows(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result{Columns: cols, Preview: rows, RowCount: n}, nil
}
