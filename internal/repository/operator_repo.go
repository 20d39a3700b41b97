package repository

import (
	"context"

	"tillbox/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OperatorRepository interface {
	Create(ctx context.Context, o *model.Operator) error
	FindByUsername(ctx context.Context, username string) (*model.Operator, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Operator, error)
	List(ctx context.Context) ([]model.Operator, error)
	Update(ctx context.Context, o *model.Operator) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type operatorRepo struct{ db *gorm.DB }

func NewOperatorRepository(db *gorm.DB) OperatorRepository { return &operatorRepo{db: db} }

func (r *operatorRepo) Create(ctx context.Context, o *model.Operator) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *operatorRepo) FindByUsername(ctx context.Context, username string) (*model.Operator, error) {
	var o model.Operator
	// Accept login by username OR email (case-insensitive email match)
	err := r.db.WithContext(ctx).
		Where("(username = ? OR LOWER(email::text) = LOWER(?)) AND active = true", username, username).
		First(&o).Error
	return &o, err
}

func (r *operatorRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Operator, error) {
	var o model.Operator
	err := r.db.WithContext(ctx).First(&o, id).Error
	return &o, err
}

func (r *operatorRepo) List(ctx context.Context) ([]model.Operator, error) {
	var ops []model.Operator
	err := r.db.WithContext(ctx).Where("active = true").Order("username ASC").Find(&ops).Error
	return ops, err
}

func (r *operatorRepo) Update(ctx context.Context, o *model.Operator) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *operatorRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Operator{}).Where("id = ?", id).Update("active", false).Error
}
