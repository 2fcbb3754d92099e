package dashboard

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passkeyOrigin = "https://dash.example.com"

func b64(raw []byte) string { return base64.RawURLEncoding.EncodeToString(raw) }

// softAuthenticator is an in-process ES256 authenticator producing "none"
// attestations and signed assertions.
type softAuthenticator struct {
	t      *testing.T
	key    *ecdsa.PrivateKey
	credID []byte
	rpID   string
	origin string
	count  uint32
}

func newSoftAuthenticator(t *testing.T, rpID, origin string) *softAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	credID := make([]byte, 16)
	_, err = rand.Read(credID)
	require.NoError(t, err)
	return &softAuthenticator{t: t, key: key, credID: credID, rpID: rpID, origin: origin}
}

func (a *softAuthenticator) authData(flags byte, attested []byte) []byte {
	rpHash := sha256.Sum256([]byte(a.rpID))
	out := append([]byte{}, rpHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, a.count)
	return append(out, attested...)
}

func (a *softAuthenticator) clientData(kind, challenge string) []byte {
	raw, err := json.Marshal(map[string]any{"type": kind, "challenge": challenge, "origin": a.origin, "crossOrigin": false})
	require.NoError(a.t, err)
	return raw
}

// attestation answers a registration challenge. Flags: user present, user
// verified, attested credential data.
func (a *softAuthenticator) attestation(challenge string) map[string]any {
	pub, err := a.key.PublicKey.ECDH()
	require.NoError(a.t, err)
	point := pub.Bytes()
	coseKey, err := webauthncbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: point[1:33], -3: point[33:65]})
	require.NoError(a.t, err)

	attested := make([]byte, 16)
	attested = binary.BigEndian.AppendUint16(attested, uint16(len(a.credID)))
	attested = append(attested, a.credID...)
	attested = append(attested, coseKey...)
	attestationObject, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": a.authData(0x45, attested),
	})
	require.NoError(a.t, err)

	return map[string]any{
		"id":    b64(a.credID),
		"rawId": b64(a.credID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(a.clientData("webauthn.create", challenge)),
			"attestationObject": b64(attestationObject),
		},
	}
}

// assertion answers a login challenge with the next signature count.
func (a *softAuthenticator) assertion(challenge string, userHandle []byte) map[string]any {
	a.count++
	authData := a.authData(0x05, nil)
	clientData := a.clientData("webauthn.get", challenge)
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	signature, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(a.t, err)

	return map[string]any{
		"id":    b64(a.credID),
		"rawId": b64(a.credID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientData),
			"authenticatorData": b64(authData),
			"signature":         b64(signature),
			"userHandle":        b64(userHandle),
		},
	}
}

func challengeOf(t *testing.T, body map[string]any) string {
	t.Helper()
	options, ok := body["publicKey"].(map[string]any)
	require.True(t, ok, body)
	challenge, ok := options["challenge"].(string)
	require.True(t, ok, body)
	return challenge
}

func TestPasskeyRegistrationAndLogin(t *testing.T) {
	f := newAPIFixture(t)
	superToken := f.tokenFor(f.super)
	userToken := f.tokenFor(f.user)

	code, body := f.do(http.MethodPut, "/v0/settings/WEB_AUTHN_ORIGINS", superToken, gin.H{"value": []string{"dash.example.com"}})
	assert.Equal(t, http.StatusBadRequest, code, body)
	code, body = f.do(http.MethodPut, "/v0/settings/WEB_AUTHN_ORIGINS", superToken, gin.H{"value": []string{passkeyOrigin}})
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(http.MethodPost, "/v0/auth/mfa/passkey/finish", userToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "registration expired", body["error"])

	code, body = f.do(http.MethodPost, "/v0/auth/mfa/passkey/begin", userToken, nil)
	require.Equal(t, http.StatusOK, code, body)
	rp := body["publicKey"].(map[string]any)["rp"].(map[string]any)
	assert.Equal(t, "dash.example.com", rp["id"])

	device := newSoftAuthenticator(t, "dash.example.com", passkeyOrigin)
	code, body = f.do(http.MethodPost, "/v0/auth/mfa/passkey/finish", userToken, device.attestation(challengeOf(t, body)))
	require.Equal(t, http.StatusOK, code, body)

	var stored models.User
	require.NoError(t, f.conn.First(&stored, f.user.ID).Error)
	assert.Equal(t, device.credID, stored.PasskeyID)
	assert.NotEmpty(t, stored.PasskeyPublicKey)

	code, body = f.do(http.MethodGet, "/v0/auth/me", userToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["passkey_enabled"])

	code, body = f.do(http.MethodPost, "/v0/auth/passkey/options", "", gin.H{"email": f.admin.Email})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "passkey not enabled", body["error"])

	code, body = f.do(http.MethodPost, "/v0/auth/passkey/options", "", gin.H{"email": "User@Example.com"})
	require.Equal(t, http.StatusOK, code, body)
	challenge := challengeOf(t, body)
	allowed := body["publicKey"].(map[string]any)["allowCredentials"].([]any)
	require.Len(t, allowed, 1)
	assert.Equal(t, b64(device.credID), allowed[0].(map[string]any)["id"])

	verifyPath := "/v0/auth/passkey/verify?email=" + url.QueryEscape(f.user.Email)
	userHandle := security.NewPasskeyUser(&stored).WebAuthnID()

	code, body = f.do(http.MethodPost, verifyPath, "", device.assertion(b64([]byte("stale challenge")), userHandle))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "login failed", body["error"])

	code, body = f.do(http.MethodPost, verifyPath, "", device.assertion(challenge, userHandle))
	require.Equal(t, http.StatusOK, code, body)
	sessionToken, _ := body["token"].(string)
	require.NotEmpty(t, sessionToken)
	assert.Equal(t, "user", body["role"])

	code, _ = f.do(http.MethodGet, "/v0/auth/me", sessionToken, nil)
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, f.conn.First(&stored, f.user.ID).Error)
	require.NotNil(t, stored.PasskeySignCount)
	assert.EqualValues(t, device.count, *stored.PasskeySignCount)

	code, body = f.do(http.MethodPost, verifyPath, "", device.assertion(challenge, userHandle))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "login expired", body["error"])

	code, _ = f.do(http.MethodPost, "/v0/auth/mfa/passkey/disable", userToken, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodPost, "/v0/auth/mfa/passkey/disable", userToken, nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = f.do(http.MethodPost, "/v0/auth/passkey/options", "", gin.H{"email": f.user.Email})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestEveryAuthenticatedRouteHasDefinition(t *testing.T) {
	f := newAPIFixture(t)
	defs := permissions.DefinitionMap()
	public := map[string]bool{
		"POST /v0/auth/login":           true,
		"POST /v0/auth/passkey/options": true,
		"POST /v0/auth/passkey/verify":  true,
	}
	for _, route := range f.engine.Routes() {
		if !strings.HasPrefix(route.Path, "/v0/") {
			continue
		}
		key := permissions.Key(route.Method, route.Path)
		if public[key] {
			continue
		}
		_, ok := defs[key]
		assert.True(t, ok, "missing definition for %s", key)
	}
}
