package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Lead records that a provider unlocked a job post. (job_post_id, provider_profile_id) is unique.
type Lead struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JobPostID         uuid.UUID        `gorm:"column:job_post_id;type:uuid;not null;uniqueIndex:leads_job_post_provider_key" json:"job_post_id"`
	ProviderProfileID uuid.UUID        `gorm:"column:provider_profile_id;type:uuid;not null;uniqueIndex:leads_job_post_provider_key" json:"provider_profile_id"`
	Status            enums.LeadStatus `gorm:"column:status;type:lead_status;not null;default:'unlocked'" json:"status"`
	UnlockedAt        time.Time        `gorm:"column:unlocked_at;not null" json:"unlocked_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
