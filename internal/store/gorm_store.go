package store

import (
	"context"
	"errors"
	"strings"

	dbpkg "github.com/flyashdesk/dashboard/internal/db"
	"github.com/flyashdesk/dashboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Repo returns a repository outside any transaction. Lock* methods then read
// without row locks.
func (s *GormStore) Repo(ctx context.Context) Repository {
	return &gormRepo{db: s.db.WithContext(ctx)}
}

// WithinTx runs fn in one database transaction; any error rolls back.
func (s *GormStore) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepo{db: tx, locking: true})
	})
}

type gormRepo struct {
	db      *gorm.DB
	locking bool
}

func (r *gormRepo) forUpdate() *gorm.DB {
	if !r.locking {
		return r.db
	}
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepo) FindUser(id uint64) (*models.User, error) {
	var user models.User
	if errFind := r.db.First(&user, id).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &user, nil
}

func (r *gormRepo) ListUsers(filter UserFilter) ([]models.User, error) {
	q := r.db.Model(&models.User{})
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}
	if filter.CreatedBy != nil {
		q = q.Where("created_by = ?", *filter.CreatedBy)
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		q = q.Where("role = ?", role)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		nameExpr, nameArg := dbpkg.ContainsFold(r.db, "name", term)
		emailExpr, emailArg := dbpkg.ContainsFold(r.db, "email", term)
		q = q.Where(r.db.Where(nameExpr, nameArg).Or(emailExpr, emailArg))
	}
	var users []models.User
	if errFind := q.Order("id DESC").Find(&users).Error; errFind != nil {
		return nil, errFind
	}
	return users, nil
}

func (r *gormRepo) LockAccount(userID uint64, material string) (*models.MaterialAccount, error) {
	var account models.MaterialAccount
	if errFind := r.forUpdate().
		Where("user_id = ? AND material_type = ?", userID, material).
		First(&account).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &account, nil
}

// EnsureAccount inserts an empty account unless one exists, then locks it.
// Concurrent first writers for the same account wait on the unique index
// instead of failing.
func (r *gormRepo) EnsureAccount(userID uint64, material string) (*models.MaterialAccount, error) {
	empty := models.MaterialAccount{UserID: userID, MaterialType: material}
	if errCreate := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "material_type"}},
		DoNothing: true,
	}).Create(&empty).Error; errCreate != nil {
		return nil, errCreate
	}
	return r.LockAccount(userID, material)
}

func (r *gormRepo) ListAccounts(userIDs []uint64) ([]models.MaterialAccount, error) {
	var accounts []models.MaterialAccount
	if len(userIDs) == 0 {
		return accounts, nil
	}
	if errFind := r.db.
		Where("user_id IN ?", userIDs).
		Order("user_id ASC, material_type ASC").
		Find(&accounts).Error; errFind != nil {
		return nil, errFind
	}
	return accounts, nil
}

func (r *gormRepo) SaveAccount(account *models.MaterialAccount) error {
	if account.ID == 0 {
		return r.db.Create(account).Error
	}
	return r.db.Save(account).Error
}

func (r *gormRepo) LockToken(id uint64) (*models.Token, error) {
	var token models.Token
	if errFind := r.forUpdate().First(&token, id).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &token, nil
}

func (r *gormRepo) LockHistory(userID uint64, customerName string) ([]models.Token, error) {
	var tokens []models.Token
	if errFind := r.forUpdate().
		Where("user_id = ? AND customer_name = ?", userID, customerName).
		Order("id ASC").
		Find(&tokens).Error; errFind != nil {
		return nil, errFind
	}
	return tokens, nil
}

func (r *gormRepo) PreviousToken(userID uint64, customerName string, beforeID uint64) (*models.Token, error) {
	var token models.Token
	if errFind := r.forUpdate().
		Where("user_id = ? AND customer_name = ? AND id < ?", userID, customerName, beforeID).
		Order("id DESC").
		First(&token).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &token, nil
}

func (r *gormRepo) LastToken(userID uint64, customerName string) (*models.Token, error) {
	var token models.Token
	if errFind := r.forUpdate().
		Where("user_id = ? AND customer_name = ?", userID, customerName).
		Order("id DESC").
		First(&token).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &token, nil
}

func (r *gormRepo) CreateToken(token *models.Token) error {
	return r.db.Create(token).Error
}

func (r *gormRepo) SaveTokens(tokens ...*models.Token) error {
	for _, token := range tokens {
		if token == nil {
			continue
		}
		if errSave := r.db.Omit(clause.Associations).Save(token).Error; errSave != nil {
			return errSave
		}
	}
	return nil
}

func (r *gormRepo) DeleteToken(id uint64) error {
	res := r.db.Delete(&models.Token{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) ListTokens(filter TokenFilter) ([]models.Token, error) {
	q := r.db.Model(&models.Token{})
	if filter.UserIDs != nil {
		if len(filter.UserIDs) == 0 {
			return []models.Token{}, nil
		}
		q = q.Where("user_id IN ?", filter.UserIDs)
	}
	if name := strings.TrimSpace(filter.CustomerName); name != "" {
		expr, arg := dbpkg.ContainsFold(r.db, "customer_name", name)
		q = q.Where(expr, arg)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	var tokens []models.Token
	if errFind := q.Order("id DESC").Find(&tokens).Error; errFind != nil {
		return nil, errFind
	}
	return tokens, nil
}

func (r *gormRepo) LockTransaction(id uint64) (*models.Transaction, error) {
	var txn models.Transaction
	if errFind := r.forUpdate().First(&txn, id).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &txn, nil
}

func (r *gormRepo) LatestTransaction(userID uint64) (*models.Transaction, error) {
	var txn models.Transaction
	if errFind := r.db.
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&txn).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &txn, nil
}

func (r *gormRepo) CreateTransaction(txn *models.Transaction) error {
	return r.db.Create(txn).Error
}

func (r *gormRepo) SaveTransaction(txn *models.Transaction) error {
	return r.db.Omit(clause.Associations).Save(txn).Error
}

func (r *gormRepo) DeleteTransaction(id uint64) error {
	res := r.db.Delete(&models.Transaction{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) ListTransactions(userID uint64, reference string) ([]models.Transaction, error) {
	q := r.db.Where("user_id = ?", userID)
	if ref := strings.TrimSpace(reference); ref != "" {
		q = q.Where(dbpkg.JSONExtractTextExpr(r.db, "bank_details", "reference_number")+" = ?", ref)
	}
	var txns []models.Transaction
	if errFind := q.Order("id DESC").Find(&txns).Error; errFind != nil {
		return nil, errFind
	}
	return txns, nil
}
