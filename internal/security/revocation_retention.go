package security

import (
	"context"
	"time"

	internalsettings "github.com/flyashdesk/dashboard/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRevocationCleanupInterval = time.Hour
	defaultRevocationDeleteBatchSize = 1000
	maxRevocationBatchesPerRun       = 500
)

// RevocationCleaner periodically deletes expired rows from revoked_tokens.
type RevocationCleaner struct {
	db        *gorm.DB
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewRevocationCleaner returns nil for a nil db.
func NewRevocationCleaner(db *gorm.DB) *RevocationCleaner {
	if db == nil {
		return nil
	}
	return &RevocationCleaner{
		db:        db,
		interval:  defaultRevocationCleanupInterval,
		batchSize: defaultRevocationDeleteBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RevocationCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("revoked token cleaner started (interval=%s)", c.interval)
}

func (c *RevocationCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.CleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// CleanupOnce deletes revocations that expired before the retention window
// and returns how many rows were removed.
func (c *RevocationCleaner) CleanupOnce(ctx context.Context) int64 {
	if c == nil || c.db == nil {
		return 0
	}
	retentionHours := internalsettings.DefaultRevokedTokenRetentionHours
	if parsed, ok := internalsettings.DBConfigInt(internalsettings.RevokedTokenRetentionHoursKey); ok && parsed >= 0 {
		retentionHours = parsed
	}
	cutoff := c.now().Add(-time.Duration(retentionHours) * time.Hour)

	deletedTotal := int64(0)
	for i := 0; i < maxRevocationBatchesPerRun; i++ {
		if ctx.Err() != nil {
			break
		}
		n, err := c.deleteBatch(ctx, cutoff)
		if err != nil {
			log.WithError(err).Warn("revoked token cleaner: delete batch failed")
			break
		}
		if n <= 0 {
			break
		}
		deletedTotal += n
	}
	if deletedTotal > 0 {
		log.Infof("revoked token cleaner: deleted %d rows (cutoff=%s)", deletedTotal, cutoff.Format(time.RFC3339))
	}
	return deletedTotal
}

func (c *RevocationCleaner) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultRevocationDeleteBatchSize
	}
	res := c.db.WithContext(ctx).Exec(`
		DELETE FROM revoked_tokens
		WHERE id IN (
			SELECT id FROM revoked_tokens
			WHERE expires_at < ?
			ORDER BY expires_at ASC
			LIMIT ?
		)
	`, cutoff, limit)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
