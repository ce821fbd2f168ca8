package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/transaction"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository expects a *gorm.DB opened with TranslateError so
// unique violations surface as gorm.ErrDuplicatedKey.
func NewTransactionRepository(db *gorm.DB) transaction.RepositoryAPI {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *payment.Transaction) error {
	err := r.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateTransaction
	}
	return err
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	var tx payment.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID int64) ([]*payment.Transaction, error) {
	var txs []*payment.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) ListPending(ctx context.Context, after transaction.PendingCursor, limit int) ([]*payment.Transaction, error) {
	var txs []*payment.Transaction
	q := r.db.WithContext(ctx).
		Where("status = ?", payment.StatusPending).
		Order("created_at ASC, id ASC")
	if !after.IsZero() {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

// Transition is a compare-and-set on status = pending. The notification is
// written in the same database transaction, so two racing callers produce one
// change and one notification.
func (r *TransactionRepository) Transition(ctx context.Context, t transaction.Transition) (bool, error) {
	if !payment.StatusPending.CanTransitionTo(t.To) {
		return false, internal.ErrInvalidStatusTransition
	}

	changed := false
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     t.To,
			"updated_at": t.At,
		}
		if t.FailureCategory != "" {
			updates["failure_category"] = t.FailureCategory
		}
		if t.FailureReason != "" {
			updates["failure_reason"] = t.FailureReason
		}

		res := db.Model(&payment.Transaction{}).
			Where("transaction_id = ? AND status = ?", t.TransactionID, payment.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		at := t.At
		return db.Create(&payment.Notification{
			TransactionID:    t.TransactionID,
			NotificationType: t.NotificationType,
			Status:           string(t.To),
			Message:          t.Message,
			ProcessedAt:      &at,
			CreatedAt:        at,
		}).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *TransactionRepository) AddNotification(ctx context.Context, n *payment.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *TransactionRepository) ListNotifications(ctx context.Context, transactionID string) ([]*payment.Notification, error) {
	var ns []*payment.Notification
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC, id ASC").
		Find(&ns).Error
	return ns, err
}
