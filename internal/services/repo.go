package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
)

// Repository persists provider service offerings.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to service offering operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, offering *models.ServiceOffering) error {
	if offering.ID == uuid.Nil {
		offering.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(offering).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceOffering, error) {
	var offering models.ServiceOffering
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offering).Error; err != nil {
		return nil, err
	}
	return &offering, nil
}

// Update writes columns on an offering owned by providerProfileID. It reports
// false when no such offering exists.
func (r *Repository) Update(ctx context.Context, id, providerProfileID uuid.UUID, columns map[string]any, now time.Time) (bool, error) {
	updates := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		updates[k] = v
	}
	updates["updated_at"] = now
	res := r.db.WithContext(ctx).
		Model(&models.ServiceOffering{}).
		Where("id = ? AND provider_profile_id = ?", id, providerProfileID).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// Delete removes an offering owned by providerProfileID.
func (r *Repository) Delete(ctx context.Context, id, providerProfileID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND provider_profile_id = ?", id, providerProfileID).
		Delete(&models.ServiceOffering{})
	return res.RowsAffected > 0, res.Error
}

// ListByProvider returns a provider's offerings newest first.
func (r *Repository) ListByProvider(ctx context.Context, providerProfileID uuid.UUID) ([]models.ServiceOffering, error) {
	var offerings []models.ServiceOffering
	err := r.db.WithContext(ctx).
		Where("provider_profile_id = ?", providerProfileID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&offerings).Error
	return offerings, err
}
