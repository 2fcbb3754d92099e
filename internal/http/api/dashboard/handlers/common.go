package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Context keys set by the authentication middleware.
const (
	ContextUserID = "userID"
	ContextRole   = "userRole"
	ContextClaims = "claims"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get(ContextUserID)
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// principalFrom returns the authenticated caller, writing 401 when absent.
func principalFrom(c *gin.Context) (permissions.Principal, bool) {
	userID := getUserID(c)
	role, _ := c.Get(ContextRole)
	r, okRole := role.(permissions.Role)
	if userID == 0 || !okRole || !r.Valid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return permissions.Principal{}, false
	}
	return permissions.Principal{ID: userID, Role: r}, true
}

// parseIDParam reads a positive integer path parameter, writing 400 when invalid.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps ledger error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInvalidState):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// userView is the public shape of a user row.
func userView(u *models.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"name":            u.Name,
		"email":           u.Email,
		"role":            u.Role,
		"is_active":       u.IsActive,
		"created_by":      u.CreatedBy,
		"totp_enabled":    strings.TrimSpace(u.TOTPSecret) != "",
		"passkey_enabled": security.HasPasskey(u),
		"created_at":      u.CreatedAt,
		"updated_at":      u.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseDate reads an optional YYYY-MM-DD value.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
