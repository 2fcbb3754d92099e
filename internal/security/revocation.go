package security

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationStore records signed-out session tokens by jti until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, userID uint64, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// DBRevocationStore keeps revocations in the revoked_tokens table.
type DBRevocationStore struct {
	db *gorm.DB
}

// NewDBRevocationStore constructs a DBRevocationStore.
func NewDBRevocationStore(db *gorm.DB) *DBRevocationStore {
	return &DBRevocationStore{db: db}
}

// Revoke implements RevocationStore. Revoking twice is a no-op.
func (s *DBRevocationStore) Revoke(ctx context.Context, jti string, userID uint64, expiresAt time.Time) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return ErrInvalidToken
	}
	row := models.RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt.UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&row).Error
}

// IsRevoked implements RevocationStore.
func (s *DBRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).
		Model(&models.RevokedToken{}).
		Where("jti = ?", strings.TrimSpace(jti)).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

const redisRevocationPrefix = "dashboard:revoked:"

// RedisRevocationStore keeps revocations as redis keys expiring with the token.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore wraps client. It returns nil for a nil client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	if client == nil {
		return nil
	}
	return &RedisRevocationStore{client: client}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	return client, nil
}

func revocationKey(jti string) string {
	return redisRevocationPrefix + strings.TrimSpace(jti)
}

// Revoke implements RevocationStore. Already expired tokens are not stored.
func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, userID uint64, expiresAt time.Time) error {
	if s == nil || s.client == nil {
		return errors.New("redis revocation store not configured")
	}
	if strings.TrimSpace(jti) == "" {
		return ErrInvalidToken
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revocationKey(jti), userID, ttl).Err()
}

// IsRevoked implements RevocationStore.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("redis revocation store not configured")
	}
	n, err := s.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
