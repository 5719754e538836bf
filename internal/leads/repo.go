package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
)

// Repository persists lead unlocks.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to lead operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(lead).Error
}

// Find returns the lead for the pair or gorm.ErrRecordNotFound.
func (r *Repository) Find(ctx context.Context, jobPostID, providerProfileID uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).
		Where("job_post_id = ? AND provider_profile_id = ?", jobPostID, providerProfileID).
		First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// CountUnlockedBetween counts unlocks in [from, to). A nil tx uses the repository handle.
func (r *Repository) CountUnlockedBetween(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("provider_profile_id = ? AND unlocked_at >= ? AND unlocked_at < ?", providerProfileID, from, to).
		Count(&count).Error
	return count, err
}

// UnlockedLead pairs a lead with the job post it opened.
type UnlockedLead struct {
	Lead    models.Lead    `json:"lead"`
	JobPost models.JobPost `json:"job_post"`
}

// ListByProvider returns the provider's unlocks, newest first.
func (r *Repository) ListByProvider(ctx context.Context, providerProfileID uuid.UUID, limit int) ([]UnlockedLead, error) {
	var leads []models.Lead
	if err := r.db.WithContext(ctx).
		Where("provider_profile_id = ?", providerProfileID).
		Order("unlocked_at DESC").
		Limit(limit).
		Find(&leads).Error; err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return []UnlockedLead{}, nil
	}

	ids := make([]uuid.UUID, 0, len(leads))
	for _, lead := range leads {
		ids = append(ids, lead.JobPostID)
	}
	var posts []models.JobPost
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.JobPost, len(posts))
	for _, post := range posts {
		byID[post.ID] = post
	}

	out := make([]UnlockedLead, 0, len(leads))
	for _, lead := range leads {
		out = append(out, UnlockedLead{Lead: lead, JobPost: byID[lead.JobPostID]})
	}
	return out, nil
}
