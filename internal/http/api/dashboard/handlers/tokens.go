package handlers

import (
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TokenHandler serves delivery token endpoints.
type TokenHandler struct {
	service *accounting.Service
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(service *accounting.Service) *TokenHandler {
	return &TokenHandler{service: service}
}

type createTokenRequest struct {
	UserID       uint64 `json:"user_id"`
	CustomerName string `json:"customer_name"`
	MaterialType string `json:"material_type"`
	TruckNumber  string `json:"truck_number"`
}

// Create issues a pending token for a customer.
func (h *TokenHandler) Create(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body createTokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 {
		body.UserID = actor.ID
	}
	token, errCreate := h.service.CreateToken(c.Request.Context(), actor, accounting.CreateTokenInput{
		UserID:       body.UserID,
		CustomerName: body.CustomerName,
		Material:     body.MaterialType,
		TruckNumber:  body.TruckNumber,
	})
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, tokenView(token))
}

type updateTokenRequest struct {
	Weight      *decimal.Decimal `json:"weight"`
	Commission  *decimal.Decimal `json:"commission"`
	TruckNumber *string          `json:"truck_number"`
}

// Update records a weighing and reprices the token.
func (h *TokenHandler) Update(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	tokenID, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	var body updateTokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	token, errUpdate := h.service.UpdateToken(c.Request.Context(), actor, tokenID, accounting.UpdateTokenInput{
		Weight:      body.Weight,
		Commission:  body.Commission,
		TruckNumber: body.TruckNumber,
	})
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, tokenView(token))
}

type confirmTokenRequest struct {
	TokenID      *uint64          `json:"token_id"`
	UserID       *uint64          `json:"user_id"`
	CustomerName string           `json:"customer_name"`
	PaidAmount   *decimal.Decimal `json:"paid_amount"`
}

// Confirm applies a payment across a customer's tokens.
func (h *TokenHandler) Confirm(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body confirmTokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, errConfirm := h.service.ConfirmToken(c.Request.Context(), actor, accounting.ConfirmInput{
		TokenID:      body.TokenID,
		UserID:       body.UserID,
		CustomerName: body.CustomerName,
		PaidAmount:   body.PaidAmount,
	})
	if errConfirm != nil {
		respondError(c, errConfirm)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tokens": tokenViews(res.Tokens),
		"settlement": gin.H{
			"payment":     res.Settlement.Payment,
			"applied":     res.Settlement.Applied,
			"leftover":    res.Settlement.Leftover,
			"credit_used": res.Settlement.CreditUsed,
		},
	})
}

// ListByUser returns one user's tokens, newest first.
func (h *TokenHandler) ListByUser(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	userID, okID := parseIDParam(c, "userId")
	if !okID {
		return
	}
	tokens, errList := h.service.ListUserTokens(c.Request.Context(), actor, userID)
	if errList != nil {
		respondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokenViews(tokens)})
}

// List returns every token visible to the caller.
func (h *TokenHandler) List(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	tokens, errList := h.service.ListTokens(c.Request.Context(), actor, accounting.TokenQuery{
		CustomerName: strings.TrimSpace(c.Query("customer_name")),
		Status:       strings.TrimSpace(c.Query("status")),
	})
	if errList != nil {
		respondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokenViews(tokens)})
}

// Delete removes a pending token.
func (h *TokenHandler) Delete(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	tokenID, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	if errDelete := h.service.DeleteToken(c.Request.Context(), actor, tokenID); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func tokenViews(tokens []models.Token) []gin.H {
	out := make([]gin.H, 0, len(tokens))
	for i := range tokens {
		out = append(out, tokenView(&tokens[i]))
	}
	return out
}

func tokenView(t *models.Token) gin.H {
	return gin.H{
		"id":            t.ID,
		"user_id":       t.UserID,
		"customer_name": t.CustomerName,
		"truck_number":  t.TruckNumber,
		"material_type": t.MaterialType,
		"weight":        t.Weight,
		"rate_per_ton":  t.RatePerTon,
		"commission":    t.Commission,
		"total_amount":  t.TotalAmount,
		"paid_amount":   t.PaidAmount,
		"carry_forward": t.CarryForward,
		"status":        t.Status,
		"created_at":    t.CreatedAt,
		"updated_at":    t.UpdatedAt,
		"confirmed_at":  t.ConfirmedAt,
	}
}
