package dataset

import "strings"

// Generic column types exposed to the dashboard builder.
const (
	GenericNumber  = "number"
	GenericString  = "string"
	GenericDate    = "date"
	GenericBoolean = "boolean"
	GenericUnknown = "unknown"
)

// MapType maps a driver's database type name to a generic type.
func MapType(native string) string {
	t := strings.ToUpper(strings.TrimSpace(native))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimPrefix(t, "UNSIGNED ")
	t = strings.TrimSuffix(t, " UNSIGNED")
	switch t {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "TINYINT", "MEDIUMINT", "BIGINT",
		"SERIAL", "BIGSERIAL", "DECIMAL", "NUMERIC", "NUMBER", "REAL", "FLOAT", "FLOAT4", "FLOAT8",
		"DOUBLE", "DOUBLE PRECISION", "MONEY", "SMALLMONEY", "YEAR":
		return GenericNumber
	case "BOOL", "BOOLEAN", "BIT":
		return GenericBoolean
	case "DATE", "TIME", "TIMETZ", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET",
		"TIMESTAMP", "TIMESTAMPTZ", "INTERVAL":
		return GenericDate
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "BPCHAR", "TEXT", "NTEXT", "TINYTEXT", "MEDIUMTEXT",
		"LONGTEXT", "CLOB", "STRING", "UUID", "UNIQUEIDENTIFIER", "CITEXT", "NAME", "ENUM", "SET",
		"JSON", "JSONB", "XML":
		return GenericString
	default:
		return GenericUnknown
	}
}
