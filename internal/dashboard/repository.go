package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"onboarding_backend/internal/common"
)

// Repository defines the customer directory data operations.
type Repository interface {
	Upsert(ctx context.Context, customer *Customer) error
	CreateBatch(ctx context.Context, customers []Customer) error
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Customer, error)
	Search(ctx context.Context, query CustomerQuery) ([]Customer, *common.Pagination, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status CustomerStatus) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
	ForEachBatch(ctx context.Context, size int, fn func([]Customer) error) error
	Touch(ctx context.Context, email string, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Upsert inserts customer or refreshes the existing row with the same email.
func (r *gormRepository) Upsert(ctx context.Context, customer *Customer) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "handle", "phone", "country", "status", "last_active_at", "updated_at"}),
	}).Create(customer).Error
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (r *gormRepository) CreateBatch(ctx context.Context, customers []Customer) error {
	if len(customers) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&customers).Error; err != nil {
		return fmt.Errorf("failed to create customers: %w", err)
	}
	return nil
}

func (r *gormRepository) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	var customer Customer
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("Customer not found.")
		}
		return nil, err
	}
	return &customer, nil
}

// FindByIDs returns the customers in the order of ids, skipping unknown ones.
func (r *gormRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Customer, error) {
	if len(ids) == 0 {
		return []Customer{}, nil
	}
	var found []Customer
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]Customer, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]Customer, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// Search matches Text case-insensitively against name, company, email and country.
func (r *gormRepository) Search(ctx context.Context, query CustomerQuery) ([]Customer, *common.Pagination, error) {
	db := r.db.WithContext(ctx).Model(&Customer{})
	if text := strings.TrimSpace(query.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(email) LIKE ? OR LOWER(country) LIKE ?",
			like, like, like, like)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to count customers: %w", err)
	}

	customers := []Customer{}
	err := db.Order(orderClause(query.Sort)).
		Offset(query.Offset()).
		Limit(query.Limit()).
		Find(&customers).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search customers: %w", err)
	}
	return customers, common.NewPagination(total, query.Page, query.PageSize), nil
}

func orderClause(sort SortOrder) string {
	switch sort {
	case SortOldest:
		return "created_at ASC"
	case SortName:
		return "name ASC"
	default:
		return "created_at DESC"
	}
}

func (r *gormRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Customer{}).Count(&n).Error
	return n, err
}

func (r *gormRepository) CountByStatus(ctx context.Context, status CustomerStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Customer{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *gormRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Customer{}).
		Where("status = ? AND last_active_at >= ?", StatusActive, since).
		Count(&n).Error
	return n, err
}

// ForEachBatch walks the whole directory in batches of size.
func (r *gormRepository) ForEachBatch(ctx context.Context, size int, fn func([]Customer) error) error {
	var batch []Customer
	result := r.db.WithContext(ctx).FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return result.Error
}

// Touch marks the customer with email as seen at.
func (r *gormRepository) Touch(ctx context.Context, email string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Customer{}).
		Where("email = ?", email).
		UpdateColumn("last_active_at", at).Error
}
