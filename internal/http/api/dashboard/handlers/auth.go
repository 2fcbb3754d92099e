package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/config"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler handles sign-in, sign-out and account creation.
type AuthHandler struct {
	db          *gorm.DB
	jwtCfg      config.JWTConfig
	revocations security.RevocationStore
	passkeys    *security.PasskeySessions
}

// NewAuthHandler constructs an AuthHandler. A nil passkeys creates a fresh store.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, revocations security.RevocationStore, passkeys *security.PasskeySessions) *AuthHandler {
	if passkeys == nil {
		passkeys = security.NewPasskeySessions()
	}
	return &AuthHandler{db: db, jwtCfg: jwtCfg, revocations: revocations, passkeys: passkeys}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login authenticates by email and password, plus a TOTP code when enabled.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := normalizeEmail(body.Email)
	if email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email or password"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "user inactive"})
		return
	}
	if strings.TrimSpace(user.TOTPSecret) != "" {
		if strings.TrimSpace(body.TOTPCode) == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "mfa required"})
			return
		}
		if !security.ValidateTOTP(body.TOTPCode, user.TOTPSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
			return
		}
	}

	h.respondWithUserToken(c, &user, "password")
}

// respondWithUserToken issues a session JWT for user.
func (h *AuthHandler) respondWithUserToken(c *gin.Context, user *models.User, method string) {
	token, claims, errToken := security.GenerateToken(h.jwtCfg.Secret, user.ID, user.Email, user.Role, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "role": user.Role, "method": method}).Info("user signed in")
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": claims.ExpiresAtTime(),
		"role":       user.Role,
		"user":       userView(user),
	})
}

// Logout revokes the presented token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	value, _ := c.Get(ContextClaims)
	claims, ok := value.(*security.UserClaims)
	if !ok || claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.revocations != nil {
		if errRevoke := h.revocations.Revoke(c.Request.Context(), claims.ID, claims.UserID, claims.ExpiresAtTime()); errRevoke != nil {
			log.WithError(errRevoke).Error("revoke token failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// registerRequest defines the request body for account creation.
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates an account for a role the caller may create.
func (h *AuthHandler) Register(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := normalizeEmail(body.Email)
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	roleName := strings.TrimSpace(body.Role)
	if roleName == "" {
		roleName = permissions.RoleUser.String()
	}
	role, errRole := permissions.ParseRole(roleName)
	if errRole != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errRole.Error()})
		return
	}
	if !permissions.CanCreate(actor, role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot create " + role.String() + " accounts"})
		return
	}
	if errWeak := security.ValidatePassword(body.Password); errWeak != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errWeak.Error()})
		return
	}

	var exists models.User
	if errCheck := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = email
	}
	creator := actor.ID
	user := models.User{
		Name:      name,
		Email:     email,
		Password:  hash,
		Role:      role.String(),
		IsActive:  true,
		CreatedBy: &creator,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "role": user.Role, "created_by": creator}).Info("user created")
	c.JSON(http.StatusCreated, userView(&user))
}

// Me returns the current user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, userView(&user))
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword verifies and updates the current user's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.OldPassword == "" || body.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	if errWeak := security.ValidatePassword(body.NewPassword); errWeak != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errWeak.Error()})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if !security.CheckPassword(user.Password, body.OldPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid old password"})
		return
	}
	hash, errHash := security.HashPassword(body.NewPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("password", hash).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
