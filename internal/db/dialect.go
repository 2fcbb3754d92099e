package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// ContainsFold returns a case-insensitive substring condition on column and
// its bound argument.
func ContainsFold(conn *gorm.DB, column, term string) (string, string) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	if IsSQLite(conn) {
		return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column), strings.ToLower(pattern)
	}
	return fmt.Sprintf("%s ILIKE ? ESCAPE '\\'", column), pattern
}

// JSONExtractTextExpr returns a SQL expression extracting a JSON field as text.
// SQLite stores marshalled JSON as a blob, so it is cast before extraction.
func JSONExtractTextExpr(conn *gorm.DB, column, key string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("json_extract(CAST(%s AS TEXT), '$.%s')", column, key)
	}
	return fmt.Sprintf("%s->>'%s'", column, key)
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
