package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reminder statuses.
const (
	bedashStatusPending   = "pending"
	bedashStatusCompleted = "completed"
)

// BedashHandler manages delivery reminders.
type BedashHandler struct {
	db *gorm.DB
}

// NewBedashHandler constructs a BedashHandler.
func NewBedashHandler(db *gorm.DB) *BedashHandler {
	return &BedashHandler{db: db}
}

type createBedashRequest struct {
	UserID       uint64           `json:"user_id"`
	Amount       *decimal.Decimal `json:"amount"`
	MaterialType string           `json:"material_type"`
	CustomDate   string           `json:"custom_date"`
	TargetDate   string           `json:"target_date"`
}

// Create records a delivery reminder for a user the caller may act on.
func (h *BedashHandler) Create(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body createBedashRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 {
		body.UserID = actor.ID
	}
	if body.Amount == nil || !body.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	material := ledger.MaterialBedash
	if body.MaterialType != "" {
		parsed, errMaterial := ledger.ParseMaterial(body.MaterialType)
		if errMaterial != nil {
			respondError(c, errMaterial)
			return
		}
		material = parsed
	}
	customDate, errCustom := parseDate(body.CustomDate)
	targetDate, errTarget := parseDate(body.TargetDate)
	if errCustom != nil || errTarget != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
		return
	}

	ctx := c.Request.Context()
	var owner models.User
	if errFind := h.db.WithContext(ctx).First(&owner, body.UserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !permissions.CanActOn(actor, accounting.SubjectOf(&owner)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}

	msg := models.BedashMessage{
		UserID:       owner.ID,
		Amount:       ledger.RoundTons(*body.Amount),
		MaterialType: string(material),
		CustomDate:   toDate(customDate),
		TargetDate:   toDate(targetDate),
		Status:       bedashStatusPending,
		CreatedBy:    actor.ID,
	}
	if errCreate := h.db.WithContext(ctx).Create(&msg).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create reminder failed"})
		return
	}
	remaining, errRemaining := h.remainingTons(c, []models.BedashMessage{msg})
	if errRemaining != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	msg.User = &owner
	c.JSON(http.StatusCreated, bedashView(&msg, remaining))
}

// List returns reminders visible to the caller with the owner's remaining tons.
func (h *BedashHandler) List(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	q := h.db.WithContext(c.Request.Context()).Model(&models.BedashMessage{}).Preload("User")
	scope := permissions.VisibleScope(actor)
	switch {
	case scope.All:
	case scope.CreatedBy != nil:
		owned := h.db.Model(&models.User{}).Select("id").Where("created_by = ?", *scope.CreatedBy)
		q = q.Where("user_id IN (?) OR created_by = ?", owned, actor.ID)
	default:
		q = q.Where("user_id = ?", scope.Self)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.BedashMessage
	if errFind := q.Order("id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	remaining, errRemaining := h.remainingTons(c, rows)
	if errRemaining != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, bedashView(&rows[i], remaining))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// Complete marks a reminder delivered.
func (h *BedashHandler) Complete(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	id, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	ctx := c.Request.Context()
	var msg models.BedashMessage
	if errFind := h.db.WithContext(ctx).Preload("User").First(&msg, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	allowed := msg.CreatedBy == actor.ID || actor.Role == permissions.RoleSuperAdmin
	if !allowed && msg.User != nil {
		allowed = permissions.CanActOn(actor, accounting.SubjectOf(msg.User))
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}
	if msg.Status == bedashStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "reminder already completed"})
		return
	}
	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(ctx).Model(&msg).Updates(map[string]any{
		"status":       bedashStatusCompleted,
		"completed_at": now,
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update reminder failed"})
		return
	}
	msg.Status = bedashStatusCompleted
	msg.CompletedAt = &now
	log.WithFields(log.Fields{"reminder_id": msg.ID, "actor_id": actor.ID}).Info("bedash reminder completed")

	remaining, errRemaining := h.remainingTons(c, []models.BedashMessage{msg})
	if errRemaining != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, bedashView(&msg, remaining))
}

type accountKey struct {
	userID   uint64
	material string
}

// remainingTons loads the remaining balance of every (user, material) pair
// referenced by rows.
func (h *BedashHandler) remainingTons(c *gin.Context, rows []models.BedashMessage) (map[accountKey]decimal.Decimal, error) {
	out := make(map[accountKey]decimal.Decimal)
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]uint64, 0, len(rows))
	seen := make(map[uint64]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.UserID]; dup {
			continue
		}
		seen[row.UserID] = struct{}{}
		ids = append(ids, row.UserID)
	}
	var accounts []models.MaterialAccount
	if errFind := h.db.WithContext(c.Request.Context()).Where("user_id IN ?", ids).Find(&accounts).Error; errFind != nil {
		return nil, errFind
	}
	for _, acc := range accounts {
		out[accountKey{userID: acc.UserID, material: acc.MaterialType}] = acc.RemainingTons
	}
	return out, nil
}

func toDate(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	d := datatypes.Date(*t)
	return &d
}

func dateString(d *datatypes.Date) any {
	if d == nil {
		return nil
	}
	return time.Time(*d).Format(time.DateOnly)
}

func bedashView(m *models.BedashMessage, remaining map[accountKey]decimal.Decimal) gin.H {
	view := gin.H{
		"id":             m.ID,
		"user_id":        m.UserID,
		"user_name":      "",
		"amount":         m.Amount,
		"material_type":  m.MaterialType,
		"custom_date":    dateString(m.CustomDate),
		"target_date":    dateString(m.TargetDate),
		"status":         m.Status,
		"created_by":     m.CreatedBy,
		"created_at":     m.CreatedAt,
		"completed_at":   m.CompletedAt,
		"remaining_tons": remaining[accountKey{userID: m.UserID, material: m.MaterialType}],
	}
	if m.User != nil {
		view["user_name"] = m.User.Name
	}
	return view
}
