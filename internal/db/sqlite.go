package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// sqlitePragmas are appended to SQLite DSNs that do not set them.
var sqlitePragmas = map[string]string{
	"busy_timeout": "5000",
	"journal_mode": "WAL",
	"foreign_keys": "1",
	"synchronous":  "NORMAL",
}

// openSQLite opens a SQLite database, creating its directory when needed.
func openSQLite(opts Options) (*gorm.DB, error) {
	dsn := ensureSQLiteParams(normalizeSQLiteDSN(opts.DSN))
	if errEnsure := ensureSQLiteDir(dsn); errEnsure != nil {
		return nil, errEnsure
	}

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(opts.SlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	if errPool := configurePool(conn, opts); errPool != nil {
		return nil, errPool
	}
	return conn, nil
}

// normalizeSQLiteDSN converts sqlite:// URLs into file: DSNs.
func normalizeSQLiteDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(lower, prefix) {
			return "file:" + trimmed[len(prefix):]
		}
	}
	return trimmed
}

// ensureSQLiteParams adds the default pragmas unless the DSN already names them.
func ensureSQLiteParams(dsn string) string {
	if dsn == "" {
		return dsn
	}
	lower := strings.ToLower(dsn)
	names := make([]string, 0, len(sqlitePragmas))
	for name := range sqlitePragmas {
		names = append(names, name)
	}
	sort.Strings(names)

	var add []string
	for _, name := range names {
		if strings.Contains(lower, "_pragma="+name) {
			continue
		}
		add = append(add, "_pragma="+name+"("+sqlitePragmas[name]+")")
	}
	if len(add) == 0 {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(add, "&")
}

// sqlitePathFromDSN returns the file path of a SQLite DSN, or "" for memory databases.
func sqlitePathFromDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" || strings.Contains(trimmed, "mode=memory") {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		trimmed = strings.TrimPrefix(trimmed[len("file:"):], "//")
	} else if strings.Contains(trimmed, "://") {
		return ""
	}
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if trimmed == "" || trimmed == ":memory:" {
		return ""
	}
	return trimmed
}

// ensureSQLiteDir creates the parent directory for a SQLite file.
func ensureSQLiteDir(dsn string) error {
	path := sqlitePathFromDSN(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return fmt.Errorf("db: create sqlite dir: %w", errMkdir)
	}
	return nil
}
