package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/types"
)

var ErrPlanNotFound = errors.New("business plan not found")

type BusinessPlanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, plans []*types.BusinessPlan) ([]*types.BusinessPlan, error)
	GetByID(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (*types.BusinessPlan, error)
	// GetByIDForUpdate loads the row with a write lock when the dialect
	// supports it, so read-modify-write content merges serialize per plan.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (*types.BusinessPlan, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.BusinessPlan, error)
	UpdateContent(ctx context.Context, tx *gorm.DB, planID uuid.UUID, content []byte) error
}

type businessPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBusinessPlanRepo(db *gorm.DB, baseLog *logger.Logger) BusinessPlanRepo {
	repoLog := baseLog.With("repo", "BusinessPlanRepo")
	return &businessPlanRepo{db: db, log: repoLog}
}

func (r *businessPlanRepo) Create(ctx context.Context, tx *gorm.DB, plans []*types.BusinessPlan) ([]*types.BusinessPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(plans) == 0 {
		return []*types.BusinessPlan{}, nil
	}
	for _, p := range plans {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *businessPlanRepo) GetByID(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (*types.BusinessPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var plan types.BusinessPlan
	err := transaction.WithContext(ctx).
		Where("id = ?", planID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *businessPlanRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, planID uuid.UUID) (*types.BusinessPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	query := transaction.WithContext(ctx)
	if transaction.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var plan types.BusinessPlan
	err := query.Where("id = ?", planID).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *businessPlanRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.BusinessPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.BusinessPlan
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *businessPlanRepo) UpdateContent(ctx context.Context, tx *gorm.DB, planID uuid.UUID, content []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.BusinessPlan{}).
		Where("id = ?", planID).
		Update("content", content)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}
