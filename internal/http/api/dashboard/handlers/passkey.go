package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func registerSessionKey(userID uint64) string { return fmt.Sprintf("register:%d", userID) }

func loginSessionKey(email string) string { return "login:" + email }

// BeginPasskeyRegistration starts a passkey registration ceremony.
func (h *MFAHandler) BeginPasskeyRegistration(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		log.WithError(errWebAuthn).Warn("passkey relying party misconfigured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	passkeyUser := security.NewPasskeyUser(user)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if creds := passkeyUser.WebAuthnCredentials(); len(creds) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(creds).CredentialDescriptors()))
	}

	creation, session, errBegin := webAuthn.BeginRegistration(passkeyUser, options...)
	if errBegin != nil {
		log.WithError(errBegin).WithField("user_id", user.ID).Error("begin passkey registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey registration failed"})
		return
	}
	h.passkeys.Set(registerSessionKey(user.ID), *session)
	c.JSON(http.StatusOK, creation)
}

// FinishPasskeyRegistration verifies the authenticator response and stores
// the credential, replacing any earlier one.
func (h *MFAHandler) FinishPasskeyRegistration(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	session, found := h.passkeys.Get(registerSessionKey(user.ID))
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration expired"})
		return
	}

	credential, errFinish := webAuthn.FinishRegistration(security.NewPasskeyUser(user), session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", user.ID).Warn("passkey registration failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(security.CredentialColumns(credential)).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save passkey failed"})
		return
	}
	h.passkeys.Delete(registerSessionKey(user.ID))
	log.WithField("user_id", user.ID).Info("passkey registered")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisablePasskey removes the stored credential.
func (h *MFAHandler) DisablePasskey(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !security.HasPasskey(user) {
		c.JSON(http.StatusConflict, gin.H{"error": "passkey not enabled"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"passkey_id":              nil,
			"passkey_public_key":      nil,
			"passkey_sign_count":      nil,
			"passkey_backup_eligible": nil,
			"passkey_backup_state":    nil,
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable passkey failed"})
		return
	}
	h.passkeys.Delete(registerSessionKey(user.ID))
	log.WithField("user_id", user.ID).Info("passkey disabled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loginPasskeyRequest defines the request body for passkey login options.
type loginPasskeyRequest struct {
	Email string `json:"email"`
}

// LoginPasskeyOptions starts a passkey login ceremony.
func (h *AuthHandler) LoginPasskeyOptions(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}
	var body loginPasskeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := normalizeEmail(body.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	user, ok := h.passkeyUser(c, email)
	if !ok {
		return
	}

	assertion, session, errBegin := webAuthn.BeginLogin(security.NewPasskeyUser(user), webauthn.WithUserVerification(protocol.VerificationPreferred))
	if errBegin != nil {
		log.WithError(errBegin).WithField("user_id", user.ID).Error("begin passkey login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey login failed"})
		return
	}
	h.passkeys.Set(loginSessionKey(email), *session)
	c.JSON(http.StatusOK, assertion)
}

// LoginPasskeyVerify completes a passkey login ceremony and issues a session.
// The request body is the authenticator assertion; the email is a query parameter.
func (h *AuthHandler) LoginPasskeyVerify(c *gin.Context) {
	webAuthn, errWebAuthn := security.NewWebAuthn()
	if errWebAuthn != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
		return
	}
	email := normalizeEmail(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	user, ok := h.passkeyUser(c, email)
	if !ok {
		return
	}
	session, found := h.passkeys.Get(loginSessionKey(email))
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login expired"})
		return
	}

	credential, errFinish := webAuthn.FinishLogin(security.NewPasskeyUser(user), session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", user.ID).Warn("passkey login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed"})
		return
	}
	h.passkeys.Delete(loginSessionKey(email))

	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"passkey_sign_count":      credential.Authenticator.SignCount,
			"passkey_backup_eligible": credential.Flags.BackupEligible,
			"passkey_backup_state":    credential.Flags.BackupState,
		}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("update passkey counter failed")
	}
	h.respondWithUserToken(c, user, "passkey")
}

// passkeyUser loads an active user with a registered passkey.
func (h *AuthHandler) passkeyUser(c *gin.Context, email string) (*models.User, bool) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "user inactive"})
		return nil, false
	}
	if !security.HasPasskey(&user) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "passkey not enabled"})
		return nil, false
	}
	return &user, true
}
