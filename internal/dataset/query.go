package dataset

import (
	"regexp"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	leadingWord  = regexp.MustCompile(`^\(*\s*([A-Za-z]+)`)
)

// CheckQuery normalizes a dataset query and rejects anything but a single SELECT or WITH statement.
// Trailing semicolons are dropped.
func CheckQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", ErrQueryRequired
	}
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\r\n"))
	stripped := strings.TrimSpace(blockComment.ReplaceAllString(lineComment.ReplaceAllString(q, " "), " "))
	if stripped == "" {
		return "", ErrQueryRequired
	}
	if strings.Contains(stripped, ";") {
		return "", ErrNotSelect
	}
	m := leadingWord.FindStringSubmatch(stripped)
	if m == nil {
		return "", ErrNotSelect
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH":
		return q, nil
	default:
		return "", ErrNotSelect
	}
}

// wrapQuery embeds q as a derived table so it can be bounded or counted.
func wrapQuery(selectList, q, suffix string) string {
	s := "SELECT " + selectList + " FROM (\n" + q + "\n) AS dataset_q"
	if suffix != "" {
		s += " " + suffix
	}
	return s
}
