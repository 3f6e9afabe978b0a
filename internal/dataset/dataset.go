// Package dataset validates BI dataset definitions against their source database: it connects with the
// driver for the source type, describes the query's columns, previews a bounded number of rows and counts
// the full result.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Source types.
const (
	TypePostgres  = "postgres"
	TypeMySQL     = "mysql"
	TypeSQLServer = "mssql"
	TypeSQLite    = "sqlite"
)

var (
	ErrUnsupportedType = errors.New("dataset: unsupported source type")
	ErrQueryRequired   = errors.New("dataset: query required")
	ErrNotSelect       = errors.New("dataset: only a single SELECT or WITH statement is allowed")
	ErrNotConnected    = errors.New("dataset: backend not connected")
	ErrInvalidPath     = errors.New("dataset: sqlite path must not contain '?' or '#'")
)

// Source describes where a dataset's rows come from.
type Source struct {
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	// Path is the database file for sqlite sources.
	Path  string `json:"path,omitempty"`
	SSL   bool   `json:"ssl,omitempty"`
	Query string `json:"query"`
}

// Column is a result column with its native and generic type.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NativeType string `json:"nativeType"`
}

// Row is one previewed row keyed by column name.
type Row map[string]any

// Backend is a connection to one source database.
type Backend interface {
	Connect(ctx context.Context) error
	DescribeColumns(ctx context.Context, query string) ([]Column, error)
	PreviewRows(ctx context.Context, query string, limit int) ([]Row, error)
	CountRows(ctx context.Context, query string) (int64, error)
	Close() error
}

// Open returns the Backend for src.Type. The backend is not connected yet.
func Open(src Source) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(src.Type)) {
	case TypePostgres, "postgresql":
		return newPostgres(src), nil
	case TypeMySQL, "mariadb":
		return newMySQL(src), nil
	case TypeSQLServer, "sqlserver":
		return newSQLServer(src), nil
	case TypeSQLite, "sqlite3":
		if strings.ContainsAny(src.Path, "?#") || strings.ContainsAny(src.Database, "?#") {
			return nil, ErrInvalidPath
		}
		return newSQLite(src), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, src.Type)
	}
}
