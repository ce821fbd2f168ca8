package payment

import "time"

type NotificationType string

const (
	NotificationApproved       NotificationType = "payment_approved"
	NotificationFailed         NotificationType = "payment_failed"
	NotificationExpired        NotificationType = "payment_expired"
	NotificationCancelled      NotificationType = "payment_cancelled"
	NotificationStatusOverride NotificationType = "status_override"
	NotificationWebhook        NotificationType = "webhook_received"
)

// Notification is an append-only audit row, one per status change.
type Notification struct {
	ID               int64            `gorm:"primaryKey"`
	TransactionID    string           `gorm:"column:transaction_id;size:64;not null;index"`
	NotificationType NotificationType `gorm:"column:notification_type;size:32;not null"`
	Status           string           `gorm:"column:status;size:16;not null"`
	Message          string           `gorm:"column:message"`
	ProcessedAt      *time.Time       `gorm:"column:processed_at"`
	CreatedAt        time.Time        `gorm:"column:created_at"`
}

func (Notification) TableName() string {
	return "payment_notifications"
}
