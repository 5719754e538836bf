package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// JobPost is a customer request that providers can unlock as a lead.
type JobPost struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID  uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	Title       string              `gorm:"column:title;not null" json:"title"`
	Description string              `gorm:"column:description;not null" json:"description"`
	Category    string              `gorm:"column:category;not null" json:"category"`
	Location    *string             `gorm:"column:location" json:"location"`
	Budget      *decimal.Decimal    `gorm:"column:budget;type:numeric(12,2)" json:"budget"`
	Tags        pq.StringArray      `gorm:"column:tags;type:text[];default:ARRAY[]::text[]" json:"tags"`
	Status      enums.JobPostStatus `gorm:"column:status;type:job_post_status;not null;default:'open'" json:"status"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
