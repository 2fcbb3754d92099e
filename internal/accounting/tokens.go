package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flyashdesk/dashboard/internal/billing"
	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CreateTokenInput describes a new delivery token.
type CreateTokenInput struct {
	UserID       uint64
	CustomerName string
	Material     string
	TruckNumber  string
}

// UpdateTokenInput records a weighing. Weight is required.
type UpdateTokenInput struct {
	Weight      *decimal.Decimal
	Commission  *decimal.Decimal
	TruckNumber *string
}

// ConfirmInput selects a customer history either by one of its tokens or by
// owner and customer name.
type ConfirmInput struct {
	TokenID      *uint64
	UserID       *uint64
	CustomerName string
	PaidAmount   *decimal.Decimal
}

// ConfirmResult is the settled history and the settlement summary.
type ConfirmResult struct {
	Tokens     []models.Token
	Settlement ledger.Settlement
}

// TokenQuery filters token listings.
type TokenQuery struct {
	CustomerName string
	Status       string
}

// CreateToken issues a pending token. An advance parked on the customer's
// previous token moves into the new one.
func (s *Service) CreateToken(ctx context.Context, actor permissions.Principal, in CreateTokenInput) (*models.Token, error) {
	customer := strings.TrimSpace(in.CustomerName)
	if customer == "" {
		return nil, fmt.Errorf("%w: customer_name is required", ledger.ErrValidation)
	}
	material := ledger.MaterialFlyash
	if strings.TrimSpace(in.Material) != "" {
		parsed, errParse := ledger.ParseMaterial(in.Material)
		if errParse != nil {
			return nil, errParse
		}
		material = parsed
	}

	var created *models.Token
	errTx := s.store.WithinTx(ctx, func(repo store.Repository) error {
		if _, errAuth := authorize(repo, actor, in.UserID); errAuth != nil {
			return errAuth
		}

		seed := decimal.Zero
		prev, errPrev := repo.LastToken(in.UserID, customer)
		switch {
		case errPrev == nil:
			updated, picked := ledger.Pickup(tokenFromModel(prev))
			if picked.IsPositive() {
				applyToken(prev, updated)
				if errSave := repo.SaveTokens(prev); errSave != nil {
					return errSave
				}
				seed = picked
			}
		case !errors.Is(errPrev, store.ErrNotFound):
			return errPrev
		}

		token := &models.Token{
			UserID:       in.UserID,
			CustomerName: customer,
			TruckNumber:  strings.TrimSpace(in.TruckNumber),
			MaterialType: string(material),
			RatePerTon:   s.RatePerTon(),
			PaidAmount:   seed,
			CarryForward: seed,
			Status:       string(ledger.StatusPending),
		}
		if errCreate := repo.CreateToken(token); errCreate != nil {
			return errCreate
		}
		created = token
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	if created.PaidAmount.IsPositive() {
		log.WithFields(log.Fields{"token_id": created.ID, "advance": created.PaidAmount.String()}).Info("token seeded from previous advance")
	}
	return created, nil
}

// UpdateToken prices a weighing, consuming or releasing tons on the owner's
// account by the weight difference.
func (s *Service) UpdateToken(ctx context.Context, actor permissions.Principal, tokenID uint64, in UpdateTokenInput) (*models.Token, error) {
	weight, errWeight := requireNonNegative("weight", in.Weight)
	if errWeight != nil {
		return nil, errWeight
	}
	commission, errCommission := optionalNonNegative("commission", in.Commission)
	if errCommission != nil {
		return nil, errCommission
	}
	weight = ledger.RoundTons(weight)
	commission = ledger.RoundMoney(commission)

	var updated *models.Token
	errTx := s.store.WithinTx(ctx, func(repo store.Repository) error {
		token, errLock := repo.LockToken(tokenID)
		if errLock != nil {
			if errors.Is(errLock, store.ErrNotFound) {
				return fmt.Errorf("%w: token %d", ledger.ErrNotFound, tokenID)
			}
			return errLock
		}
		if _, errAuth := authorize(repo, actor, token.UserID); errAuth != nil {
			return errAuth
		}
		if !ledger.Status(token.Status).Editable() {
			return fmt.Errorf("%w: token %d is %s", ledger.ErrInvalidState, token.ID, token.Status)
		}
		material, errMaterial := ledger.ParseMaterial(token.MaterialType)
		if errMaterial != nil {
			return errMaterial
		}

		diff := weight.Sub(token.Weight)
		account, errAccount := lockAccount(repo, token.UserID, material)
		if errAccount != nil {
			return errAccount
		}
		adjusted, errAdjust := ledger.Adjust(accountFromModel(account), diff)
		if errAdjust != nil {
			return errAdjust
		}

		prevCarry := decimal.Zero
		prev, errPrev := repo.PreviousToken(token.UserID, token.CustomerName, token.ID)
		switch {
		case errPrev == nil:
			prevCarry = prev.CarryForward
		case !errors.Is(errPrev, store.ErrNotFound):
			return errPrev
		}

		rate := s.RatePerTon()
		total := billing.ComputeTotal(weight, rate, commission)
		applyToken(token, ledger.Reprice(tokenFromModel(token), weight, rate, commission, total, prevCarry))
		if in.TruckNumber != nil {
			token.TruckNumber = strings.TrimSpace(*in.TruckNumber)
		}

		if !diff.IsZero() {
			applyAccount(account, adjusted)
			if errSave := repo.SaveAccount(account); errSave != nil {
				return errSave
			}
		}
		if errSave := repo.SaveTokens(token); errSave != nil {
			return errSave
		}
		updated = token
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return updated, nil
}

// ConfirmToken applies a payment to a customer's whole history.
func (s *Service) ConfirmToken(ctx context.Context, actor permissions.Principal, in ConfirmInput) (*ConfirmResult, error) {
	paid, errPaid := requireNonNegative("paid_amount", in.PaidAmount)
	if errPaid != nil {
		return nil, errPaid
	}
	customer := strings.TrimSpace(in.CustomerName)
	if in.TokenID == nil && (in.UserID == nil || customer == "") {
		return nil, fmt.Errorf("%w: token_id or user_id with customer_name is required", ledger.ErrValidation)
	}

	var result *ConfirmResult
	errTx := s.store.WithinTx(ctx, func(repo store.Repository) error {
		var ownerID uint64
		if in.TokenID != nil {
			token, errLock := repo.LockToken(*in.TokenID)
			if errLock != nil {
				if errors.Is(errLock, store.ErrNotFound) {
					return fmt.Errorf("%w: token %d", ledger.ErrNotFound, *in.TokenID)
				}
				return errLock
			}
			ownerID, customer = token.UserID, token.CustomerName
		} else {
			ownerID = *in.UserID
		}
		if _, errAuth := authorize(repo, actor, ownerID); errAuth != nil {
			return errAuth
		}

		history, errHistory := repo.LockHistory(ownerID, customer)
		if errHistory != nil {
			return errHistory
		}
		if len(history) == 0 {
			return fmt.Errorf("%w: no tokens for customer %q", ledger.ErrNotFound, customer)
		}

		views := make([]ledger.Token, len(history))
		for i := range history {
			views[i] = tokenFromModel(&history[i])
		}
		settlement, errSettle := ledger.Settle(views, paid, s.now())
		if errSettle != nil {
			return errSettle
		}

		changed := make([]*models.Token, 0, len(history))
		for i := range history {
			applyToken(&history[i], settlement.Tokens[i])
			changed = append(changed, &history[i])
		}
		if errSave := repo.SaveTokens(changed...); errSave != nil {
			return errSave
		}
		result = &ConfirmResult{Tokens: history, Settlement: settlement}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	log.WithFields(log.Fields{
		"customer":    customer,
		"payment":     result.Settlement.Payment.String(),
		"applied":     result.Settlement.Applied.String(),
		"leftover":    result.Settlement.Leftover.String(),
		"credit_used": result.Settlement.CreditUsed.String(),
	}).Info("customer tokens settled")
	return result, nil
}

// DeleteToken removes a pending token. Tokens holding an advance payment must
// be billed and settled instead.
func (s *Service) DeleteToken(ctx context.Context, actor permissions.Principal, tokenID uint64) error {
	return s.store.WithinTx(ctx, func(repo store.Repository) error {
		token, errLock := repo.LockToken(tokenID)
		if errLock != nil {
			if errors.Is(errLock, store.ErrNotFound) {
				return fmt.Errorf("%w: token %d", ledger.ErrNotFound, tokenID)
			}
			return errLock
		}
		if _, errAuth := authorize(repo, actor, token.UserID); errAuth != nil {
			return errAuth
		}
		if ledger.Status(token.Status) != ledger.StatusPending {
			return fmt.Errorf("%w: only pending tokens can be deleted, token %d is %s", ledger.ErrInvalidState, token.ID, token.Status)
		}
		if token.PaidAmount.IsPositive() {
			return fmt.Errorf("%w: token %d holds an advance of %s", ledger.ErrInvalidState, token.ID, token.PaidAmount)
		}
		return repo.DeleteToken(token.ID)
	})
}

// ListUserTokens returns a user's tokens, newest first.
func (s *Service) ListUserTokens(ctx context.Context, actor permissions.Principal, userID uint64) ([]models.Token, error) {
	repo := s.store.Repo(ctx)
	if _, errAuth := authorizeView(repo, actor, userID); errAuth != nil {
		return nil, errAuth
	}
	return repo.ListTokens(store.TokenFilter{UserIDs: []uint64{userID}})
}

// ListTokens returns every token visible to actor, newest first.
func (s *Service) ListTokens(ctx context.Context, actor permissions.Principal, q TokenQuery) ([]models.Token, error) {
	repo := s.store.Repo(ctx)
	ids, errIDs := visibleUserIDs(repo, actor)
	if errIDs != nil {
		return nil, errIDs
	}
	filter := store.TokenFilter{CustomerName: q.CustomerName, Status: q.Status}
	if ids != nil {
		filter.UserIDs = ids
	}
	return repo.ListTokens(filter)
}
