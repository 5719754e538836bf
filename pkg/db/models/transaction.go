package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Transaction is an append-only money movement. PaymentReference is unique so
// gateway callbacks can be replayed safely. ProviderID is set only on rows that
// credit the provider.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID       uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	ProviderID       *uuid.UUID              `gorm:"column:provider_id;type:uuid;index" json:"provider_id"`
	BookingID        *uuid.UUID              `gorm:"column:booking_id;type:uuid;index" json:"booking_id"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type;not null" json:"type"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null" json:"status"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Fee              decimal.Decimal         `gorm:"column:fee;type:numeric(12,2);not null;default:0" json:"fee"`
	NetAmount        decimal.Decimal         `gorm:"column:net_amount;type:numeric(12,2);not null" json:"net_amount"`
	PaymentReference *string                 `gorm:"column:payment_reference;uniqueIndex" json:"payment_reference"`
	GatewayStatus    *string                 `gorm:"column:gateway_status" json:"gateway_status"`
	Description      *string                 `gorm:"column:description" json:"description"`
	Metadata         json.RawMessage         `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
