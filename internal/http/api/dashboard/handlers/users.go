package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UserHandler manages dashboard accounts.
type UserHandler struct {
	db      *gorm.DB
	service *accounting.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, service *accounting.Service) *UserHandler {
	return &UserHandler{db: db, service: service}
}

// List returns the users visible to the caller, newest first.
func (h *UserHandler) List(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	users, errList := h.service.VisibleUsers(c.Request.Context(), actor, c.Query("q"))
	if errList != nil {
		respondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, userView(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns one user.
func (h *UserHandler) Get(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	user, found := h.loadUser(c)
	if !found {
		return
	}
	if !permissions.CanView(actor, accounting.SubjectOf(user)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

// updateUserRequest defines the editable user fields.
type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Update edits a user the caller manages.
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, found := h.loadUser(c)
	if !found {
		return
	}
	subject := accounting.SubjectOf(user)
	if !permissions.CanManageUser(actor, subject) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}

	ctx := c.Request.Context()
	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Email != nil {
		email := normalizeEmail(*body.Email)
		if email == "" || !strings.Contains(email, "@") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		if email != user.Email {
			var count int64
			if errCount := h.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, user.ID).
				Count(&count).Error; errCount != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
				return
			}
		}
		updates["email"] = email
	}
	if body.Password != nil {
		if errWeak := security.ValidatePassword(*body.Password); errWeak != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errWeak.Error()})
			return
		}
		hash, errHash := security.HashPassword(*body.Password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		updates["password"] = hash
	}
	if body.Role != nil {
		role, errRole := permissions.ParseRole(*body.Role)
		if errRole != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errRole.Error()})
			return
		}
		if role != subject.Role && !permissions.CanAssignRole(actor, subject, role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot assign role " + role.String()})
			return
		}
		updates["role"] = role.String()
	}
	if body.IsActive != nil {
		if user.ID == actor.ID && !*body.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot deactivate yourself"})
			return
		}
		updates["is_active"] = *body.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	if errUpdate := h.db.WithContext(ctx).Model(user).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	if errReload := h.db.WithContext(ctx).First(user, user.ID).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "actor_id": actor.ID}).Info("user updated")
	c.JSON(http.StatusOK, userView(user))
}

// Delete removes an inactive user with its accounts, tokens, transactions and
// reminders.
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	user, found := h.loadUser(c)
	if !found {
		return
	}
	if !permissions.CanManageUser(actor, accounting.SubjectOf(user)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return
	}
	if user.ID == actor.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}
	if user.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "deactivate the user before deleting"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.BedashMessage{}, &models.Token{}, &models.Transaction{}, &models.MaterialAccount{}} {
			if errDelete := tx.Where("user_id = ?", user.ID).Delete(model).Error; errDelete != nil {
				return errDelete
			}
		}
		if errOrphan := tx.Model(&models.User{}).
			Where("created_by = ?", user.ID).
			Update("created_by", nil).Error; errOrphan != nil {
			return errOrphan
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if errTx != nil {
		log.WithError(errTx).WithField("user_id", user.ID).Error("delete user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	log.WithFields(log.Fields{"user_id": user.ID, "actor_id": actor.ID}).Info("user deleted")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *UserHandler) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &user, true
}
