package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/flyashdesk/dashboard/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsHandler exposes runtime settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns every stored setting.
func (h *SettingsHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{"key": row.Key, "value": row.Value, "updated_at": row.UpdatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out, "known_keys": settings.KnownKeys()})
}

type updateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Update writes one known setting and refreshes the in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.IsKnownKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if msg := validateSetting(key, body.Value); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if errUpsert := settings.Upsert(c.Request.Context(), h.db, key, body.Value); errUpsert != nil {
		log.WithError(errUpsert).WithField("key", key).Error("save setting failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
		return
	}
	log.WithField("key", key).Info("setting updated")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}

func validateSetting(key string, raw json.RawMessage) string {
	switch key {
	case settings.RatePerTonKey:
		var rate decimal.Decimal
		if errUnmarshal := json.Unmarshal(raw, &rate); errUnmarshal != nil || !rate.IsPositive() {
			return "RATE_PER_TON must be a positive number"
		}
		if !rate.Equal(ledger.RoundMoney(rate)) {
			return "RATE_PER_TON must have at most 2 decimal places"
		}
	case settings.RevokedTokenRetentionHoursKey:
		var hours int
		if errUnmarshal := json.Unmarshal(raw, &hours); errUnmarshal != nil || hours < 0 {
			return "REVOKED_TOKEN_RETENTION_HOURS must be a non-negative integer"
		}
	case settings.WebAuthnRPIDKey, settings.WebAuthnRPNameKey:
		var value string
		if errUnmarshal := json.Unmarshal(raw, &value); errUnmarshal != nil || strings.TrimSpace(value) == "" {
			return key + " must be a non-empty string"
		}
	case settings.WebAuthnOriginsKey:
		origins := settings.ParseStrings(raw)
		if len(origins) == 0 {
			return "WEB_AUTHN_ORIGINS must list at least one origin"
		}
		for _, origin := range origins {
			if security.OriginHost(origin) == "" {
				return fmt.Sprintf("WEB_AUTHN_ORIGINS entry %q is not an absolute URL", origin)
			}
		}
	case settings.SiteNameKey:
		var name string
		if errUnmarshal := json.Unmarshal(raw, &name); errUnmarshal != nil || strings.TrimSpace(name) == "" {
			return "SITE_NAME must be a non-empty string"
		}
	}
	return ""
}
