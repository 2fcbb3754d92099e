package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	dbpkg "github.com/flyashdesk/dashboard/internal/db"
	"github.com/flyashdesk/dashboard/internal/models"
	internalsettings "github.com/flyashdesk/dashboard/internal/settings"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := dbpkg.Open(fmt.Sprintf("file:security_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

const testSecret = "0123456789abcdef0123"

func TestTokenRoundTrip(t *testing.T) {
	signed, claims, err := GenerateToken(testSecret, 7, "user@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
	parsed, err := ParseToken(testSecret, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.UserID != 7 || parsed.Role != "admin" || parsed.ID != claims.ID {
		t.Fatalf("unexpected claims %+v", parsed)
	}
	if parsed.ExpiresAtTime().Before(time.Now()) {
		t.Fatalf("expected future expiry")
	}

	_, other, _ := GenerateToken(testSecret, 7, "user@example.com", "admin", time.Hour)
	if other.ID == claims.ID {
		t.Fatalf("expected unique jti per token")
	}
}

func TestParseTokenRejects(t *testing.T) {
	signed, _, _ := GenerateToken(testSecret, 7, "user@example.com", "user", time.Hour)
	if _, err := ParseToken("another-secret-0000000", signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	expired, _, _ := GenerateToken(testSecret, 7, "user@example.com", "user", -time.Minute)
	if _, err := ParseToken(testSecret, expired); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, &UserClaims{UserID: 7})
	unsigned, _ := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseToken(testSecret, unsigned); err != ErrInvalidToken {
		t.Fatalf("expected unsigned token rejected, got %v", err)
	}

	if _, err := ParseToken(testSecret, "garbage"); err != ErrInvalidToken {
		t.Fatalf("expected garbage rejected, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong-pass") {
		t.Fatalf("expected mismatch")
	}
	if ValidatePassword("short") != ErrWeakPassword {
		t.Fatalf("expected weak password error")
	}
	if ValidatePassword("long enough") != nil {
		t.Fatalf("expected password accepted")
	}
}

func TestGenerateRandomString(t *testing.T) {
	for _, n := range []int{1, 7, 16, 33} {
		s, err := GenerateRandomString(n)
		if err != nil {
			t.Fatalf("generate %d: %v", n, err)
		}
		if len(s) != n {
			t.Fatalf("expected length %d, got %d", n, len(s))
		}
	}
	if _, err := GenerateRandomString(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestTOTPEnrollment(t *testing.T) {
	key, err := GenerateTOTP("user@example.com")
	if err != nil {
		t.Fatalf("generate totp: %v", err)
	}
	if key.Issuer() != internalsettings.SiteName() {
		t.Fatalf("expected issuer %q, got %q", internalsettings.SiteName(), key.Issuer())
	}
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if !ValidateTOTP(code, key.Secret()) {
		t.Fatalf("expected code to validate")
	}
	if ValidateTOTP("", key.Secret()) || ValidateTOTP(code, "") {
		t.Fatalf("expected empty inputs rejected")
	}
	if !strings.HasPrefix(TOTPQRCode(key), "data:image/png;base64,") {
		t.Fatalf("expected png data url")
	}
}

func TestPendingSecretsExpire(t *testing.T) {
	store := NewPendingSecrets()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(1, "ABC")
	if got, ok := store.Get(1); !ok || got != "ABC" {
		t.Fatalf("expected pending secret, got %q %v", got, ok)
	}
	now = now.Add(pendingSecretTTL + time.Second)
	if _, ok := store.Get(1); ok {
		t.Fatalf("expected secret to expire")
	}
	store.Set(2, "DEF")
	store.Delete(2)
	if _, ok := store.Get(2); ok {
		t.Fatalf("expected secret deleted")
	}
}

func TestDBRevocationStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewDBRevocationStore(conn)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}
	expires := time.Now().Add(time.Hour)
	if errRevoke := store.Revoke(ctx, "jti-1", 3, expires); errRevoke != nil {
		t.Fatalf("revoke: %v", errRevoke)
	}
	if errRevoke := store.Revoke(ctx, "jti-1", 3, expires); errRevoke != nil {
		t.Fatalf("second revoke: %v", errRevoke)
	}
	revoked, err = store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if errRevoke := store.Revoke(ctx, " ", 3, expires); errRevoke != ErrInvalidToken {
		t.Fatalf("expected empty jti rejected, got %v", errRevoke)
	}
}

func TestRedisRevocationStoreWithoutClient(t *testing.T) {
	if NewRedisRevocationStore(nil) != nil {
		t.Fatalf("expected nil store for nil client")
	}
	var store *RedisRevocationStore
	if _, err := store.IsRevoked(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from unconfigured store")
	}
	if got := revocationKey(" abc "); got != "dashboard:revoked:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRevocationCleanerHonoursRetention(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []models.RevokedToken{
		{JTI: "old", UserID: 1, ExpiresAt: now.Add(-72 * time.Hour)},
		{JTI: "recent", UserID: 1, ExpiresAt: now.Add(-2 * time.Hour)},
		{JTI: "live", UserID: 1, ExpiresAt: now.Add(time.Hour)},
	}
	if errCreate := conn.Create(&rows).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	t.Cleanup(func() { internalsettings.StoreDBConfig(time.Time{}, nil) })
	internalsettings.StoreDBConfig(now, map[string]json.RawMessage{
		internalsettings.RevokedTokenRetentionHoursKey: json.RawMessage(`24`),
	})

	cleaner := NewRevocationCleaner(conn)
	cleaner.now = func() time.Time { return now }
	if deleted := cleaner.CleanupOnce(context.Background()); deleted != 1 {
		t.Fatalf("expected 1 row deleted with 24h retention, got %d", deleted)
	}

	internalsettings.StoreDBConfig(now, nil)
	if deleted := cleaner.CleanupOnce(context.Background()); deleted != 1 {
		t.Fatalf("expected 1 row deleted with default retention, got %d", deleted)
	}

	var remaining []models.RevokedToken
	if errFind := conn.Find(&remaining).Error; errFind != nil {
		t.Fatalf("list: %v", errFind)
	}
	if len(remaining) != 1 || remaining[0].JTI != "live" {
		t.Fatalf("expected only live revocation left, got %+v", remaining)
	}

	if NewRevocationCleaner(nil) != nil {
		t.Fatalf("expected nil cleaner for nil db")
	}
}

func TestNewWebAuthnReadsSettings(t *testing.T) {
	t.Cleanup(func() { internalsettings.StoreDBConfig(time.Time{}, nil) })

	internalsettings.StoreDBConfig(time.Time{}, nil)
	defaults, err := NewWebAuthn()
	if err != nil {
		t.Fatalf("default relying party: %v", err)
	}
	if defaults.Config.RPID != "localhost" || defaults.Config.RPDisplayName != internalsettings.DefaultSiteName {
		t.Fatalf("unexpected defaults %+v", defaults.Config)
	}

	internalsettings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		internalsettings.WebAuthnOriginsKey: json.RawMessage(`["https://dash.example.com:8443"]`),
	})
	derived, err := NewWebAuthn()
	if err != nil {
		t.Fatalf("derived relying party: %v", err)
	}
	if derived.Config.RPID != "dash.example.com" {
		t.Fatalf("expected RP ID from origin host, got %q", derived.Config.RPID)
	}

	internalsettings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		internalsettings.WebAuthnOriginsKey: json.RawMessage(`"https://app.example.com"`),
		internalsettings.WebAuthnRPIDKey:    json.RawMessage(`"example.com"`),
		internalsettings.WebAuthnRPNameKey:  json.RawMessage(`"Ash Depot"`),
	})
	explicit, err := NewWebAuthn()
	if err != nil {
		t.Fatalf("explicit relying party: %v", err)
	}
	if explicit.Config.RPID != "example.com" || explicit.Config.RPDisplayName != "Ash Depot" {
		t.Fatalf("unexpected explicit config %+v", explicit.Config)
	}
}

func TestPasskeyUserCredentials(t *testing.T) {
	bare := NewPasskeyUser(&models.User{ID: 258, Email: "user@example.com"})
	if len(bare.WebAuthnCredentials()) != 0 {
		t.Fatalf("expected no credentials")
	}
	if got := bare.WebAuthnID(); len(got) != 8 || got[6] != 1 || got[7] != 2 {
		t.Fatalf("unexpected webauthn id %v", got)
	}
	if bare.WebAuthnDisplayName() != "user@example.com" {
		t.Fatalf("expected email as display name")
	}

	count := uint32(9)
	eligible := true
	user := &models.User{ID: 1, Email: "a@example.com", Name: "A", PasskeyID: []byte{1}, PasskeyPublicKey: []byte{2}, PasskeySignCount: &count, PasskeyBackupEligible: &eligible}
	if !HasPasskey(user) {
		t.Fatalf("expected passkey to be detected")
	}
	creds := NewPasskeyUser(user).WebAuthnCredentials()
	if len(creds) != 1 || creds[0].Authenticator.SignCount != 9 || !creds[0].Flags.BackupEligible || creds[0].Flags.BackupState {
		t.Fatalf("unexpected credential %+v", creds)
	}
}

func TestPasskeySessionsExpire(t *testing.T) {
	now := time.Now()
	sessions := NewPasskeySessions()
	sessions.now = func() time.Time { return now }

	sessions.Set("login:a@example.com", webauthn.SessionData{Challenge: "abc"})
	if got, ok := sessions.Get("login:a@example.com"); !ok || got.Challenge != "abc" {
		t.Fatalf("expected stored session, got %+v ok=%v", got, ok)
	}
	now = now.Add(passkeySessionTTL + time.Second)
	if _, ok := sessions.Get("login:a@example.com"); ok {
		t.Fatalf("expected session to expire")
	}

	sessions.Set("register:1", webauthn.SessionData{Challenge: "x", Expires: now.Add(time.Minute)})
	sessions.Delete("register:1")
	if _, ok := sessions.Get("register:1"); ok {
		t.Fatalf("expected session to be deleted")
	}
}
