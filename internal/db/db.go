package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool and session time zone.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// TimeZone is applied to Postgres sessions and used when scanning timestamps.
	TimeZone string
	// SlowQuery logs statements slower than this at warn level; zero disables it.
	SlowQuery time.Duration
}

func (o Options) withDefaults(dialect string) Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
		// SQLite has no row locks; one connection serializes writers.
		if dialect == DialectSQLite {
			o.MaxOpenConns = 1
		}
	}
	if o.MaxIdleConns <= 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if strings.TrimSpace(o.TimeZone) == "" {
		o.TimeZone = "UTC"
	}
	return o
}

// newGormLogger routes gorm's logger through logrus.
func newGormLogger(slow time.Duration) logger.Interface {
	return logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open opens a GORM connection, picking the driver from the DSN shape.
func Open(dsn string) (*gorm.DB, error) {
	return OpenWithOptions(Options{DSN: dsn})
}

// OpenWithOptions opens a GORM connection using opts.
func OpenWithOptions(opts Options) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(opts.DSN)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	opts.DSN = trimmed

	dialect, err := detectDialectFromDSN(trimmed)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults(dialect)
	switch dialect {
	case DialectPostgres:
		return openPostgres(opts)
	case DialectSQLite:
		return openSQLite(opts)
	default:
		return nil, fmt.Errorf("db: unsupported dialect: %s", dialect)
	}
}

// OpenWithRetry keeps trying to connect with exponential backoff until
// maxElapsed passes or ctx is cancelled. Configuration errors are not retried.
func OpenWithRetry(ctx context.Context, opts Options, maxElapsed time.Duration) (*gorm.DB, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = maxElapsed

	var conn *gorm.DB
	attempt := 0
	operation := func() error {
		attempt++
		opened, errOpen := OpenWithOptions(opts)
		if errOpen != nil {
			if isPermanentOpenError(errOpen) {
				return backoff.Permanent(errOpen)
			}
			return errOpen
		}
		conn = opened
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Warnf("db: connect attempt %d failed, retrying in %s", attempt, wait.Round(time.Millisecond))
	}
	if errRetry := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); errRetry != nil {
		return nil, errRetry
	}
	return conn, nil
}

func isPermanentOpenError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "empty dsn") ||
		strings.Contains(msg, "unsupported dsn") ||
		strings.Contains(msg, "parse dsn")
}

// detectDialectFromDSN infers the dialect from a DSN string.
func detectDialectFromDSN(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"),
		strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "sqlite3://"),
		!strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db: unsupported dsn: %s", dsn)
	}
}

func configurePool(conn *gorm.DB, opts Options) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("db: ping: %w", errPing)
	}
	return nil
}
