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
	"gorm.io/datatypes"
)

const (
	PaymentModeCash   = "cash"
	PaymentModeOnline = "online"
)

// PurchaseInput buys tons of one or both materials with currency.
type PurchaseInput struct {
	UserID       uint64
	FlyashAmount *decimal.Decimal
	BedashAmount *decimal.Decimal
	PaymentMode  string
	BankDetails  *models.BankDetails
	RatePerTon   decimal.Decimal // zero uses the current rate
}

// PurchaseResult is the recorded transaction and the updated accounts.
type PurchaseResult struct {
	Transaction *models.Transaction
	Accounts    []ledger.Account
}

// EditTransactionInput overrides fields of the latest transaction. Nil keeps
// the stored value.
type EditTransactionInput struct {
	FlyashAmount *decimal.Decimal
	BedashAmount *decimal.Decimal
	PaymentMode  *string
	BankDetails  *models.BankDetails
}

// UserBalance pairs a user with both material accounts.
type UserBalance struct {
	User     models.User
	Accounts []ledger.Account
}

func normalizePaymentMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", PaymentModeCash:
		return PaymentModeCash, nil
	case PaymentModeOnline:
		return PaymentModeOnline, nil
	default:
		return "", fmt.Errorf("%w: unknown payment_mode %q", ledger.ErrValidation, mode)
	}
}

func bankDetailsFor(mode string, details *models.BankDetails) *datatypes.JSONType[models.BankDetails] {
	if mode != PaymentModeOnline || details == nil {
		return nil
	}
	v := datatypes.NewJSONType(models.BankDetails{
		BankName:        strings.TrimSpace(details.BankName),
		AccountHolder:   strings.TrimSpace(details.AccountHolder),
		ReferenceNumber: strings.TrimSpace(details.ReferenceNumber),
	})
	return &v
}

// Purchase converts currency into tons at the rate and credits each material.
func (s *Service) Purchase(ctx context.Context, actor permissions.Principal, in PurchaseInput) (*PurchaseResult, error) {
	flyash, errFlyash := optionalNonNegative("flyash_amount", in.FlyashAmount)
	if errFlyash != nil {
		return nil, errFlyash
	}
	bedash, errBedash := optionalNonNegative("bedash_amount", in.BedashAmount)
	if errBedash != nil {
		return nil, errBedash
	}
	if !flyash.Add(bedash).IsPositive() {
		return nil, fmt.Errorf("%w: at least one amount must be positive", ledger.ErrValidation)
	}
	mode, errMode := normalizePaymentMode(in.PaymentMode)
	if errMode != nil {
		return nil, errMode
	}
	rate := in.RatePerTon
	if !rate.IsPositive() {
		rate = s.RatePerTon()
	}
	flyashTons, errTons := billing.TonsFor(flyash, rate)
	if errTons != nil {
		return nil, errTons
	}
	bedashTons, errTons := billing.TonsFor(bedash, rate)
	if errTons != nil {
		return nil, errTons
	}

	result := &PurchaseResult{}
	errTx := s.store.WithinTx(ctx, func(repo store.Repository) error {
		if _, errAuth := authorize(repo, actor, in.UserID); errAuth != nil {
			return errAuth
		}
		credits := []struct {
			material ledger.Material
			tons     decimal.Decimal
		}{
			{ledger.MaterialFlyash, flyashTons},
			{ledger.MaterialBedash, bedashTons},
		}
		for _, c := range credits {
			if !c.tons.IsPositive() {
				continue
			}
			account, errAccount := lockAccount(repo, in.UserID, c.material)
			if errAccount != nil {
				return errAccount
			}
			credited, errCredit := ledger.Credit(accountFromModel(account), c.tons)
			if errCredit != nil {
				return errCredit
			}
			applyAccount(account, credited)
			if errSave := repo.SaveAccount(account); errSave != nil {
				return errSave
			}
			result.Accounts = append(result.Accounts, credited)
		}

		actorID := actor.ID
		txn := &models.Transaction{
			UserID:       in.UserID,
			TotalAmount:  ledger.RoundMoney(flyash.Add(bedash)),
			FlyashAmount: ledger.RoundMoney(flyash),
			BedashAmount: ledger.RoundMoney(bedash),
			FlyashTons:   flyashTons,
			BedashTons:   bedashTons,
			RatePerTon:   rate,
			PaymentMode:  mode,
			BankDetails:  bankDetailsFor(mode, in.BankDetails),
			CreatedBy:    &actorID,
		}
		if errCreate := repo.CreateTransaction(txn); errCreate != nil {
			return errCreate
		}
		result.Transaction = txn
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	log.WithFields(log.Fields{
		"user_id":     in.UserID,
		"flyash_tons": flyashTons.String(),
		"bedash_tons": bedashTons.String(),
		"rate":        rate.String(),
	}).Info("balance purchased")
	return result, nil
}

// AddBalance credits one material. A zero rate uses the current rate.
func (s *Service) AddBalance(ctx context.Context, actor permissions.Principal, userID uint64, material ledger.Material, amount, rate decimal.Decimal) (ledger.Account, error) {
	in := PurchaseInput{UserID: userID, RatePerTon: rate}
	switch material {
	case ledger.MaterialFlyash:
		in.FlyashAmount = &amount
	case ledger.MaterialBedash:
		in.BedashAmount = &amount
	default:
		return ledger.Account{}, fmt.Errorf("%w: unknown material %q", ledger.ErrValidation, material)
	}
	res, errPurchase := s.Purchase(ctx, actor, in)
	if errPurchase != nil {
		return ledger.Account{}, errPurchase
	}
	for _, acc := range res.Accounts {
		if acc.Material == material {
			return acc, nil
		}
	}
	return ledger.NewAccount(userID, material), nil
}

// GetBalance returns both material accounts of a user. Missing accounts are
// reported empty.
func (s *Service) GetBalance(ctx context.Context, actor permissions.Principal, userID uint64) ([]ledger.Account, error) {
	repo := s.store.Repo(ctx)
	if _, errAuth := authorizeView(repo, actor, userID); errAuth != nil {
		return nil, errAuth
	}
	rows, errList := repo.ListAccounts([]uint64{userID})
	if errList != nil {
		return nil, errList
	}
	return completeAccounts(userID, rows), nil
}

func completeAccounts(userID uint64, rows []models.MaterialAccount) []ledger.Account {
	out := make([]ledger.Account, 0, len(ledger.Materials()))
	for _, material := range ledger.Materials() {
		acc := ledger.NewAccount(userID, material)
		for i := range rows {
			if rows[i].UserID == userID && rows[i].MaterialType == string(material) {
				acc = accountFromModel(&rows[i])
				break
			}
		}
		out = append(out, acc)
	}
	return out
}

// BalanceReport lists every visible user with their accounts.
func (s *Service) BalanceReport(ctx context.Context, actor permissions.Principal) ([]UserBalance, error) {
	repo := s.store.Repo(ctx)
	users, errUsers := visibleUsers(repo, actor, "")
	if errUsers != nil {
		return nil, errUsers
	}
	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	rows, errList := repo.ListAccounts(ids)
	if errList != nil {
		return nil, errList
	}
	report := make([]UserBalance, 0, len(users))
	for _, u := range users {
		report = append(report, UserBalance{User: u, Accounts: completeAccounts(u.ID, rows)})
	}
	return report, nil
}

// ListTransactions returns a user's purchases, newest first, optionally
// filtered by bank reference number.
func (s *Service) ListTransactions(ctx context.Context, actor permissions.Principal, userID uint64, reference string) ([]models.Transaction, error) {
	repo := s.store.Repo(ctx)
	if _, errAuth := authorizeView(repo, actor, userID); errAuth != nil {
		return nil, errAuth
	}
	return repo.ListTransactions(userID, reference)
}

// lockLatest locks a transaction and requires it to be the user's newest.
func lockLatest(repo store.Repository, actor permissions.Principal, txnID uint64) (*models.Transaction, error) {
	txn, errLock := repo.LockTransaction(txnID)
	if errLock != nil {
		if errors.Is(errLock, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", ledger.ErrNotFound, txnID)
		}
		return nil, errLock
	}
	if _, errAuth := authorize(repo, actor, txn.UserID); errAuth != nil {
		return nil, errAuth
	}
	latest, errLatest := repo.LatestTransaction(txn.UserID)
	if errLatest != nil {
		return nil, errLatest
	}
	if latest.ID != txn.ID {
		return nil, fmt.Errorf("%w: only the latest transaction can be changed", ledger.ErrInvalidState)
	}
	return txn, nil
}

// shiftTons applies a ton delta to one material account.
func shiftTons(repo store.Repository, userID uint64, material ledger.Material, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	account, errLock := repo.LockAccount(userID, string(material))
	if errLock != nil {
		if !errors.Is(errLock, store.ErrNotFound) {
			return errLock
		}
		if delta.IsNegative() {
			return fmt.Errorf("%w: no %s account to debit", ledger.ErrInvalidState, material)
		}
		account, errLock = repo.EnsureAccount(userID, string(material))
		if errLock != nil {
			return errLock
		}
	}
	var (
		next   ledger.Account
		errOps error
	)
	if delta.IsPositive() {
		next, errOps = ledger.Credit(accountFromModel(account), delta)
	} else {
		next, errOps = ledger.Debit(accountFromModel(account), delta.Neg())
	}
	if errOps != nil {
		return errOps
	}
	applyAccount(account, next)
	return repo.SaveAccount(account)
}

// EditTransaction rewrites the latest purchase and moves the ton difference.
func (s *Service) EditTransaction(ctx context.Context, actor permissions.Principal, txnID uint64, in EditTransactionInput) (*models.Transaction, error) {
	var edited *models.Transaction
	errTx := s.store.WithinTx(ctx, func(repo store.Repository) error {
		txn, errLock := lockLatest(repo, actor, txnID)
		if errLock != nil {
			return errLock
		}
		flyash, bedash := txn.FlyashAmount, txn.BedashAmount
		if in.FlyashAmount != nil {
			v, errV := requireNonNegative("flyash_amount", in.FlyashAmount)
			if errV != nil {
				return errV
			}
			flyash = v
		}
		if in.BedashAmount != nil {
			v, errV := requireNonNegative("bedash_amount", in.BedashAmount)
			if errV != nil {
				return errV
			}
			bedash = v
		}
		if !flyash.Add(bedash).IsPositive() {
			return fmt.Errorf("%w: at least one amount must be positive", ledger.ErrValidation)
		}
		mode := txn.PaymentMode
		if in.PaymentMode != nil {
			normalized, errMode := normalizePaymentMode(*in.PaymentMode)
			if errMode != nil {
				return errMode
			}
			mode = normalized
		}

		rate := txn.RatePerTon
		if !rate.IsPositive() {
			rate = s.RatePerTon()
		}
		flyashTons, errTons := billing.TonsFor(flyash, rate)
		if errTons != nil {
			return errTons
		}
		bedashTons, errTons := billing.TonsFor(bedash, rate)
		if errTons != nil {
			return errTons
		}
		if errShift := shiftTons(repo, txn.UserID, ledger.MaterialFlyash, flyashTons.Sub(txn.FlyashTons)); errShift != nil {
			return errShift
		}
		if errShift := shiftTons(repo, txn.UserID, ledger.MaterialBedash, bedashTons.Sub(txn.BedashTons)); errShift != nil {
			return errShift
		}

		txn.TotalAmount = ledger.RoundMoney(flyash.Add(bedash))
		txn.FlyashAmount = ledger.RoundMoney(flyash)
		txn.BedashAmount = ledger.RoundMoney(bedash)
		txn.FlyashTons = flyashTons
		txn.BedashTons = bedashTons
		txn.RatePerTon = rate
		if in.BankDetails != nil || mode != txn.PaymentMode {
			details := in.BankDetails
			if details == nil && txn.BankDetails != nil {
				current := txn.BankDetails.Data()
				details = &current
			}
			txn.BankDetails = bankDetailsFor(mode, details)
		}
		txn.PaymentMode = mode
		if errSave := repo.SaveTransaction(txn); errSave != nil {
			return errSave
		}
		edited = txn
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return edited, nil
}

// DeleteTransaction removes the latest purchase and debits its tons.
func (s *Service) DeleteTransaction(ctx context.Context, actor permissions.Principal, txnID uint64) error {
	return s.store.WithinTx(ctx, func(repo store.Repository) error {
		txn, errLock := lockLatest(repo, actor, txnID)
		if errLock != nil {
			return errLock
		}
		if errShift := shiftTons(repo, txn.UserID, ledger.MaterialFlyash, txn.FlyashTons.Neg()); errShift != nil {
			return errShift
		}
		if errShift := shiftTons(repo, txn.UserID, ledger.MaterialBedash, txn.BedashTons.Neg()); errShift != nil {
			return errShift
		}
		return repo.DeleteTransaction(txn.ID)
	})
}
