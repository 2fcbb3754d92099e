package security

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"sync"
	"time"

	internalsettings "github.com/flyashdesk/dashboard/internal/settings"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// pendingSecretTTL bounds how long an unconfirmed TOTP enrollment lives.
const pendingSecretTTL = 10 * time.Minute

// GenerateTOTP creates a new TOTP key issued under the configured site name.
func GenerateTOTP(accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      internalsettings.SiteName(),
		AccountName: strings.TrimSpace(accountName),
	})
}

// ValidateTOTP checks code against secret for the current time step.
func ValidateTOTP(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// TOTPQRCode renders key as a PNG data URL; it returns "" when rendering fails.
func TOTPQRCode(key *otp.Key) string {
	if key == nil {
		return ""
	}
	img, errImage := key.Image(220, 220)
	if errImage != nil {
		return ""
	}
	var buf bytes.Buffer
	if errEncode := png.Encode(&buf, img); errEncode != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// secretEntry stores a TOTP secret with expiry.
type secretEntry struct {
	secret  string
	expires time.Time
}

// PendingSecrets keeps unconfirmed TOTP secrets in memory.
type PendingSecrets struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[uint64]secretEntry
}

// NewPendingSecrets creates an empty store.
func NewPendingSecrets() *PendingSecrets {
	return &PendingSecrets{ttl: pendingSecretTTL, now: time.Now, items: make(map[uint64]secretEntry)}
}

// Set stores a secret with expiry.
func (s *PendingSecrets) Set(userID uint64, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = secretEntry{secret: secret, expires: s.now().Add(s.ttl)}
}

// Get returns a secret if present and not expired.
func (s *PendingSecrets) Get(userID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[userID]
	if !ok {
		return "", false
	}
	if s.now().After(entry.expires) {
		delete(s.items, userID)
		return "", false
	}
	return entry.secret, true
}

// Delete removes a pending secret.
func (s *PendingSecrets) Delete(userID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
}
