package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MethodConfig struct {
	ID            int64           `gorm:"primaryKey"`
	MethodName    Method          `gorm:"column:method_name;size:32;not null;uniqueIndex"`
	IsActive      bool            `gorm:"column:is_active;not null"`
	ProcessingFee decimal.Decimal `gorm:"column:processing_fee;type:numeric(5,2);not null"`
	MinAmount     decimal.Decimal `gorm:"column:min_amount;type:numeric(12,2);not null"`
	MaxAmount     decimal.Decimal `gorm:"column:max_amount;type:numeric(12,2);not null"`
	ConfigData    datatypes.JSON  `gorm:"column:config_data"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (MethodConfig) TableName() string {
	return "payment_methods_config"
}
