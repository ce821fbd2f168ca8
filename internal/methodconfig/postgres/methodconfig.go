package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	"gorm.io/gorm"
)

type MethodConfigRepository struct {
	db *gorm.DB
}

func NewMethodConfigRepository(db *gorm.DB) methodconfig.RepositoryAPI {
	return &MethodConfigRepository{db: db}
}

// List returns the methods in a stable order.
func (r *MethodConfigRepository) List(ctx context.Context) ([]*payment.MethodConfig, error) {
	var cfgs []*payment.MethodConfig
	err := r.db.WithContext(ctx).Order("id ASC").Find(&cfgs).Error
	return cfgs, err
}

func (r *MethodConfigRepository) GetByMethod(ctx context.Context, method payment.Method) (*payment.MethodConfig, error) {
	var cfg payment.MethodConfig
	err := r.db.WithContext(ctx).Where("method_name = ?", method).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrMethodNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *MethodConfigRepository) Create(ctx context.Context, cfg *payment.MethodConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *MethodConfigRepository) Update(ctx context.Context, cfg *payment.MethodConfig) error {
	cfg.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *MethodConfigRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&payment.MethodConfig{}).Error
}
