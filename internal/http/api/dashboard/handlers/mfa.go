package handlers

import (
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MFAHandler manages TOTP and passkey enrollment for the current user.
type MFAHandler struct {
	db       *gorm.DB
	pending  *security.PendingSecrets
	passkeys *security.PasskeySessions
}

// NewMFAHandler constructs an MFAHandler. Nil stores are created fresh.
func NewMFAHandler(db *gorm.DB, pending *security.PendingSecrets, passkeys *security.PasskeySessions) *MFAHandler {
	if pending == nil {
		pending = security.NewPendingSecrets()
	}
	if passkeys == nil {
		passkeys = security.NewPasskeySessions()
	}
	return &MFAHandler{db: db, pending: pending, passkeys: passkeys}
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

// PrepareTOTP issues a pending secret and its QR code.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if strings.TrimSpace(user.TOTPSecret) != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}
	key, errKey := security.GenerateTOTP(user.Email)
	if errKey != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp failed"})
		return
	}
	h.pending.Set(user.ID, key.Secret())
	c.JSON(http.StatusOK, gin.H{
		"secret":      key.Secret(),
		"otpauth_url": key.URL(),
		"qr_code":     security.TOTPQRCode(key),
	})
}

// ConfirmTOTP stores the pending secret once a valid code is presented.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	secret, found := h.pending.Get(user.ID)
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp enrollment"})
		return
	}
	if !security.ValidateTOTP(body.Code, secret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("totp_secret", secret).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save totp failed"})
		return
	}
	h.pending.Delete(user.ID)
	log.WithField("user_id", user.ID).Info("totp enabled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP clears the secret after checking a current code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(user.TOTPSecret) == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp not enabled"})
		return
	}
	if !security.ValidateTOTP(body.Code, user.TOTPSecret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("totp_secret", "").Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	log.WithField("user_id", user.ID).Info("totp disabled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *MFAHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return &user, true
}
