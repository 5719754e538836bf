package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Repository handles subscription period persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscription(ctx context.Context, providerProfileID uuid.UUID) (*models.Subscription, error)
	ListEndedCancellations(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// FindSubscription returns nil without error when the provider never subscribed.
func (r *repository) FindSubscription(ctx context.Context, providerProfileID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_profile_id = ?", providerProfileID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListEndedCancellations returns active subscriptions flagged to cancel whose
// period is over, oldest first.
func (r *repository) ListEndedCancellations(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("cancel_at_period_end = ? AND status = ? AND current_period_end <= ?", true, enums.SubscriptionStatusActive, now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
