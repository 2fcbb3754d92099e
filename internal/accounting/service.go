package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flyashdesk/dashboard/internal/billing"
	"github.com/flyashdesk/dashboard/internal/ledger"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/store"
	"github.com/shopspring/decimal"
)

// Service runs balance and token operations. Every mutating call validates its
// input, authorizes the actor and commits inside a single store transaction.
type Service struct {
	store store.Store
	rates billing.RateSource
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(st store.Store, rates billing.RateSource) *Service {
	if rates == nil {
		rates = billing.NewResolver(decimal.Zero)
	}
	return &Service{
		store: st,
		rates: rates,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for confirmation stamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// RatePerTon exposes the rate new operations will use, rounded to currency
// precision so that stored rates reproduce stored totals.
func (s *Service) RatePerTon() decimal.Decimal {
	return ledger.RoundMoney(s.rates.RatePerTon())
}

// SubjectOf builds the permission subject of a user row.
func SubjectOf(user *models.User) permissions.Subject {
	role, _ := permissions.ParseRole(user.Role)
	return permissions.Subject{ID: user.ID, Role: role, CreatedBy: user.CreatedBy}
}

// authorize loads userID and checks that actor may act on it.
func authorize(repo store.Repository, actor permissions.Principal, userID uint64) (*models.User, error) {
	user, errFind := repo.FindUser(userID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ledger.ErrNotFound, userID)
		}
		return nil, errFind
	}
	if !permissions.CanActOn(actor, SubjectOf(user)) {
		return nil, fmt.Errorf("%w: %s %d cannot act on user %d", ledger.ErrForbidden, actor.Role, actor.ID, userID)
	}
	return user, nil
}

// authorizeView is authorize with CanView semantics.
func authorizeView(repo store.Repository, actor permissions.Principal, userID uint64) (*models.User, error) {
	user, errFind := repo.FindUser(userID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ledger.ErrNotFound, userID)
		}
		return nil, errFind
	}
	if !permissions.CanView(actor, SubjectOf(user)) {
		return nil, fmt.Errorf("%w: %s %d cannot view user %d", ledger.ErrForbidden, actor.Role, actor.ID, userID)
	}
	return user, nil
}

// VisibleUsers lists the users actor may see, newest first.
func (s *Service) VisibleUsers(ctx context.Context, actor permissions.Principal, query string) ([]models.User, error) {
	return visibleUsers(s.store.Repo(ctx), actor, query)
}

func visibleUsers(repo store.Repository, actor permissions.Principal, query string) ([]models.User, error) {
	scope := permissions.VisibleScope(actor)
	filter := store.UserFilter{Query: query}
	switch {
	case scope.All:
	case scope.CreatedBy != nil:
		filter.CreatedBy = scope.CreatedBy
		filter.Role = permissions.RoleUser.String()
	default:
		filter.IDs = []uint64{scope.Self}
	}
	return repo.ListUsers(filter)
}

func visibleUserIDs(repo store.Repository, actor permissions.Principal) ([]uint64, error) {
	if permissions.VisibleScope(actor).All {
		return nil, nil
	}
	users, errList := visibleUsers(repo, actor, "")
	if errList != nil {
		return nil, errList
	}
	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func accountFromModel(m *models.MaterialAccount) ledger.Account {
	return ledger.Account{
		UserID:        m.UserID,
		Material:      ledger.Material(m.MaterialType),
		TotalTons:     m.TotalTons,
		UsedTons:      m.UsedTons,
		RemainingTons: m.RemainingTons,
	}
}

func applyAccount(m *models.MaterialAccount, a ledger.Account) {
	m.TotalTons = a.TotalTons
	m.UsedTons = a.UsedTons
	m.RemainingTons = a.RemainingTons
}

func tokenFromModel(m *models.Token) ledger.Token {
	return ledger.Token{
		ID:           m.ID,
		Status:       ledger.Status(m.Status),
		Weight:       m.Weight,
		RatePerTon:   m.RatePerTon,
		Commission:   m.Commission,
		TotalAmount:  m.TotalAmount,
		PaidAmount:   m.PaidAmount,
		CarryForward: m.CarryForward,
		ConfirmedAt:  m.ConfirmedAt,
	}
}

func applyToken(m *models.Token, t ledger.Token) {
	m.Status = string(t.Status)
	m.Weight = t.Weight
	m.RatePerTon = t.RatePerTon
	m.Commission = t.Commission
	m.TotalAmount = t.TotalAmount
	m.PaidAmount = t.PaidAmount
	m.CarryForward = t.CarryForward
	m.ConfirmedAt = t.ConfirmedAt
}

// lockAccount returns the locked account, creating an empty one first if the
// user has never held this material.
func lockAccount(repo store.Repository, userID uint64, material ledger.Material) (*models.MaterialAccount, error) {
	account, errLock := repo.LockAccount(userID, string(material))
	if errLock == nil {
		return account, nil
	}
	if !errors.Is(errLock, store.ErrNotFound) {
		return nil, errLock
	}
	return repo.EnsureAccount(userID, string(material))
}

func requireNonNegative(name string, v *decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, fmt.Errorf("%w: %s is required", ledger.ErrValidation, name)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ledger.ErrValidation, name)
	}
	return *v, nil
}

func optionalNonNegative(name string, v *decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	return requireNonNegative(name, v)
}
