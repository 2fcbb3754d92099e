package security

import (
	"encoding/binary"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/flyashdesk/dashboard/internal/models"
	internalsettings "github.com/flyashdesk/dashboard/internal/settings"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Relying party defaults used until the WEB_AUTHN_* settings are written.
const (
	defaultWebAuthnRPID   = "localhost"
	defaultWebAuthnOrigin = "http://localhost"
)

// passkeySessionTTL applies when the library leaves SessionData.Expires unset.
const passkeySessionTTL = 5 * time.Minute

// NewWebAuthn builds the relying party from the settings snapshot. The RP ID
// falls back to the host of the first origin.
func NewWebAuthn() (*webauthn.WebAuthn, error) {
	rpName := internalsettings.DBConfigString(internalsettings.WebAuthnRPNameKey)
	if rpName == "" {
		rpName = internalsettings.SiteName()
	}

	origins := internalsettings.DBConfigStrings(internalsettings.WebAuthnOriginsKey)
	if len(origins) == 0 {
		origins = []string{defaultWebAuthnOrigin}
	}

	rpID := internalsettings.DBConfigString(internalsettings.WebAuthnRPIDKey)
	if rpID == "" {
		rpID = deriveRPID(origins)
	}
	if rpID == "" {
		rpID = defaultWebAuthnRPID
	}

	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpName,
		RPOrigins:     origins,
	})
}

func deriveRPID(origins []string) string {
	for _, origin := range origins {
		if host := OriginHost(origin); host != "" {
			return host
		}
	}
	return ""
}

// OriginHost returns the hostname of an absolute origin URL, or "".
func OriginHost(origin string) string {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}

// HasPasskey reports whether user has a registered credential.
func HasPasskey(user *models.User) bool {
	return user != nil && len(user.PasskeyID) > 0 && len(user.PasskeyPublicKey) > 0
}

// PasskeyUser adapts a user row to webauthn.User.
type PasskeyUser struct {
	id          uint64
	email       string
	name        string
	credentials []webauthn.Credential
}

// NewPasskeyUser wraps user and its stored credential, if any.
func NewPasskeyUser(user *models.User) *PasskeyUser {
	out := &PasskeyUser{id: user.ID, email: user.Email, name: user.Name}
	if !HasPasskey(user) {
		return out
	}
	var signCount uint32
	if user.PasskeySignCount != nil {
		signCount = *user.PasskeySignCount
	}
	flags := webauthn.CredentialFlags{}
	if user.PasskeyBackupEligible != nil {
		flags.BackupEligible = *user.PasskeyBackupEligible
	}
	if user.PasskeyBackupState != nil {
		flags.BackupState = *user.PasskeyBackupState
	}
	out.credentials = []webauthn.Credential{{
		ID:            user.PasskeyID,
		PublicKey:     user.PasskeyPublicKey,
		Flags:         flags,
		Authenticator: webauthn.Authenticator{SignCount: signCount},
	}}
	return out
}

// WebAuthnID returns the user ID as 8 big-endian bytes.
func (u *PasskeyUser) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u.id)
	return buf
}

// WebAuthnName returns the login email.
func (u *PasskeyUser) WebAuthnName() string { return u.email }

// WebAuthnDisplayName returns the display name, or the email when unset.
func (u *PasskeyUser) WebAuthnDisplayName() string {
	if strings.TrimSpace(u.name) == "" {
		return u.email
	}
	return u.name
}

// WebAuthnCredentials returns the registered credentials.
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// CredentialColumns maps a verified credential onto the users passkey columns.
func CredentialColumns(credential *webauthn.Credential) map[string]any {
	return map[string]any{
		"passkey_id":              credential.ID,
		"passkey_public_key":      credential.PublicKey,
		"passkey_sign_count":      credential.Authenticator.SignCount,
		"passkey_backup_eligible": credential.Flags.BackupEligible,
		"passkey_backup_state":    credential.Flags.BackupState,
	}
}

type passkeySession struct {
	data    webauthn.SessionData
	expires time.Time
}

// PasskeySessions keeps in-flight WebAuthn ceremonies in memory.
type PasskeySessions struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]passkeySession
}

// NewPasskeySessions creates an empty store.
func NewPasskeySessions() *PasskeySessions {
	return &PasskeySessions{now: time.Now, items: make(map[string]passkeySession)}
}

// Set stores a ceremony under key until it expires.
func (s *PasskeySessions) Set(key string, data webauthn.SessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := data.Expires
	if expires.IsZero() {
		expires = s.now().Add(passkeySessionTTL)
	}
	s.items[key] = passkeySession{data: data, expires: expires}
}

// Get returns the ceremony stored under key if it has not expired.
func (s *PasskeySessions) Get(key string) (webauthn.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return webauthn.SessionData{}, false
	}
	if s.now().After(entry.expires) {
		delete(s.items, key)
		return webauthn.SessionData{}, false
	}
	return entry.data, true
}

// Delete drops the ceremony stored under key.
func (s *PasskeySessions) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}
