package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openPostgres opens a PostgreSQL connection through pgx's database/sql
// adapter so timestamp scanning honours the configured time zone.
func openPostgres(opts Options) (*gorm.DB, error) {
	cfg, errParse := pgx.ParseConfig(opts.DSN)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", errParse)
	}
	loc, errLoc := time.LoadLocation(opts.TimeZone)
	if errLoc != nil {
		return nil, fmt.Errorf("db: parse dsn: unknown time zone %q: %w", opts.TimeZone, errLoc)
	}
	cfg.RuntimeParams["timezone"] = loc.String()

	sqlDB := stdlib.OpenDB(*cfg, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		registerTimestampCodecs(conn.TypeMap(), loc)
		return nil
	}))

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: newGormLogger(opts.SlowQuery),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open: %w", err)
	}
	if errPool := configurePool(conn, opts); errPool != nil {
		return nil, errPool
	}
	return conn, nil
}

// registerTimestampCodecs makes pgx return timestamps in loc instead of UTC.
func registerTimestampCodecs(m *pgtype.Map, loc *time.Location) {
	if m == nil || loc == nil {
		return
	}
	m.RegisterType(&pgtype.Type{
		Name:  "timestamp",
		OID:   pgtype.TimestampOID,
		Codec: &pgtype.TimestampCodec{ScanLocation: loc},
	})
	m.RegisterType(&pgtype.Type{
		Name:  "timestamptz",
		OID:   pgtype.TimestamptzOID,
		Codec: &pgtype.TimestamptzCodec{ScanLocation: loc},
	})
}
