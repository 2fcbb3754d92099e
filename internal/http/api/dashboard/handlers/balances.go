package handlers

import (
	"net/http"
	"strings"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BalanceHandler serves balance purchases and reports.
type BalanceHandler struct {
	service *accounting.Service
}

// NewBalanceHandler constructs a BalanceHandler.
func NewBalanceHandler(service *accounting.Service) *BalanceHandler {
	return &BalanceHandler{service: service}
}

// purchaseRequest defines the request body for a balance purchase.
type purchaseRequest struct {
	UserID       uint64              `json:"user_id"`
	FlyashAmount *decimal.Decimal    `json:"flyash_amount"`
	BedashAmount *decimal.Decimal    `json:"bedash_amount"`
	PaymentMode  string              `json:"payment_mode"`
	BankDetails  *models.BankDetails `json:"bank_details"`
}

// Purchase converts currency to tons and credits the user's accounts.
func (h *BalanceHandler) Purchase(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	var body purchaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}
	res, errPurchase := h.service.Purchase(c.Request.Context(), actor, accounting.PurchaseInput{
		UserID:       body.UserID,
		FlyashAmount: body.FlyashAmount,
		BedashAmount: body.BedashAmount,
		PaymentMode:  body.PaymentMode,
		BankDetails:  body.BankDetails,
	})
	if errPurchase != nil {
		respondError(c, errPurchase)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"transaction": transactionView(res.Transaction),
		"balances":    accountViews(res.Accounts),
	})
}

// Get returns both material balances of one user.
func (h *BalanceHandler) Get(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	userID, okID := parseIDParam(c, "userId")
	if !okID {
		return
	}
	accounts, errGet := h.service.GetBalance(c.Request.Context(), actor, userID)
	if errGet != nil {
		respondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balances": accountViews(accounts)})
}

// Report lists balances of every user visible to the caller.
func (h *BalanceHandler) Report(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	report, errReport := h.service.BalanceReport(c.Request.Context(), actor)
	if errReport != nil {
		respondError(c, errReport)
		return
	}
	out := make([]gin.H, 0, len(report))
	for i := range report {
		out = append(out, gin.H{
			"user":     userView(&report[i].User),
			"balances": accountViews(report[i].Accounts),
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Transactions returns a user's purchase history, newest first.
func (h *BalanceHandler) Transactions(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	userID, okID := parseIDParam(c, "userId")
	if !okID {
		return
	}
	txns, errList := h.service.ListTransactions(c.Request.Context(), actor, userID, strings.TrimSpace(c.Query("reference")))
	if errList != nil {
		respondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(txns))
	for i := range txns {
		out = append(out, transactionView(&txns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// editTransactionRequest defines the editable transaction fields.
type editTransactionRequest struct {
	FlyashAmount *decimal.Decimal    `json:"flyash_amount"`
	BedashAmount *decimal.Decimal    `json:"bedash_amount"`
	PaymentMode  *string             `json:"payment_mode"`
	BankDetails  *models.BankDetails `json:"bank_details"`
}

// EditTransaction rewrites the user's latest purchase.
func (h *BalanceHandler) EditTransaction(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	txnID, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	var body editTransactionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	txn, errEdit := h.service.EditTransaction(c.Request.Context(), actor, txnID, accounting.EditTransactionInput{
		FlyashAmount: body.FlyashAmount,
		BedashAmount: body.BedashAmount,
		PaymentMode:  body.PaymentMode,
		BankDetails:  body.BankDetails,
	})
	if errEdit != nil {
		respondError(c, errEdit)
		return
	}
	c.JSON(http.StatusOK, transactionView(txn))
}

// DeleteTransaction removes the user's latest purchase and its tons.
func (h *BalanceHandler) DeleteTransaction(c *gin.Context) {
	actor, ok := principalFrom(c)
	if !ok {
		return
	}
	txnID, okID := parseIDParam(c, "id")
	if !okID {
		return
	}
	if errDelete := h.service.DeleteTransaction(c.Request.Context(), actor, txnID); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func accountViews(accounts []ledger.Account) []gin.H {
	out := make([]gin.H, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, gin.H{
			"material_type":  acc.Material,
			"total_tons":     acc.TotalTons,
			"used_tons":      acc.UsedTons,
			"remaining_tons": acc.RemainingTons,
		})
	}
	return out
}

func transactionView(t *models.Transaction) gin.H {
	view := gin.H{
		"id":            t.ID,
		"user_id":       t.UserID,
		"total_amount":  t.TotalAmount,
		"flyash_amount": t.FlyashAmount,
		"bedash_amount": t.BedashAmount,
		"flyash_tons":   t.FlyashTons,
		"bedash_tons":   t.BedashTons,
		"rate_per_ton":  t.RatePerTon,
		"payment_mode":  t.PaymentMode,
		"bank_details":  nil,
		"created_by":    t.CreatedBy,
		"created_at":    t.CreatedAt,
		"updated_at":    t.UpdatedAt,
	}
	if t.BankDetails != nil {
		details := t.BankDetails.Data()
		view["bank_details"] = details
	}
	return view
}
