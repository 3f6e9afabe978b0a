package dataset

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

const connectTimeout = 10

func hostPort(host string, port, def int) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func newPostgres(src Source) Backend {
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(connectTimeout))
	if src.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(src.User, src.Password),
		Host:     hostPort(src.Host, src.Port, 5432),
		Path:     "/" + src.Database,
		RawQuery: q.Encode(),
	}
	return &sqlBackend{d: dialect{driver: "pgx", dsn: u.String(), bound: limitBound}}
}

func newMySQL(src Source) Backend {
	cfg := mysql.NewConfig()
	cfg.User = src.User
	cfg.Passwd = src.Password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(src.Host, src.Port, 3306)
	cfg.DBName = src.Database
	cfg.ParseTime = true
	if src.SSL {
		cfg.TLSConfig = "true"
	}
	return &sqlBackend{d: dialect{driver: "mysql", dsn: cfg.FormatDSN(), bound: limitBound}}
}

func newSQLServer(src Source) Backend {
	q := url.Values{}
	q.Set("database", src.Database)
	q.Set("connection timeout", strconv.Itoa(connectTimeout))
	if src.SSL {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(src.User, src.Password),
		Host:     hostPort(src.Host, src.Port, 1433),
		RawQuery: q.Encode(),
	}
	return &sqlBackend{d: dialect{driver: "sqlserver", dsn: u.String(), bound: topBound}}
}

func newSQLite(src Source) Backend {
	path := src.Path
	if path == "" {
		path = src.Database
	}
	return &sqlBackend{d: dialect{driver: "sqlite3", dsn: "file:" + sqlitePathEscaper.Replace(path) + "?mode=ro", bound: limitBound}}
}

// sqlitePathEscaper percent-encodes the characters SQLite URI filenames treat specially, so a path
// can never add or override query parameters such as mode.
var sqlitePathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")
