package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Repository handles provider profile persistence, including the usage
// counters the subscription gate relies on.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to provider profile operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new provider profile.
func (r *Repository) Create(ctx context.Context, profile *models.ProviderProfile) error {
	if profile == nil {
		return fmt.Errorf("profile is required")
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.UsageWindowStart.IsZero() {
		profile.UsageWindowStart = profile.BookingCountResetDate.AddDate(0, -1, 0)
	}
	return r.db.WithContext(ctx).Create(profile).Error
}

// FindByID loads a profile by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	var profile models.ProviderProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByUserID loads the profile owned by the user.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error) {
	var profile models.ProviderProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update writes the given columns and stamps updated_at.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, columns map[string]any, now time.Time) error {
	if len(columns) == 0 {
		return nil
	}
	updates := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		updates[k] = v
	}
	updates["updated_at"] = now
	res := r.db.WithContext(ctx).Model(&models.ProviderProfile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByIDForUpdate row-locks the profile for the rest of the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	var profile models.ProviderProfile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func freshWindow(now time.Time) map[string]any {
	return map[string]any{
		"monthly_booking_count":    0,
		"usage_window_start":       now,
		"booking_count_reset_date": now.AddDate(0, 1, 0),
		"updated_at":               now,
	}
}

// ResetUsageIfExpired zeroes the booking counter and opens a new window only
// while the stored window has expired, so concurrent callers reset at most once.
func (r *Repository) ResetUsageIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProviderProfile{}).
		Where("id = ? AND booking_count_reset_date < ?", id, now).
		Updates(freshWindow(now))
	return res.RowsAffected > 0, res.Error
}

// ResetExpiredUsage rolls every expired window forward in one statement.
func (r *Repository) ResetExpiredUsage(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProviderProfile{}).
		Where("booking_count_reset_date < ?", now).
		Updates(freshWindow(now))
	return res.RowsAffected, res.Error
}

// ClaimBookingSlot counts one booking in a single conditional UPDATE. An
// expired window restarts at now with this booking as its first. It reports
// false, leaving the row untouched, when the open window already holds limit
// bookings. A limit of zero or less means uncapped.
func (r *Repository) ClaimBookingSlot(ctx context.Context, id uuid.UUID, limit int, now time.Time) (bool, error) {
	const expired = "booking_count_reset_date < ?"
	q := r.db.WithContext(ctx).Model(&models.ProviderProfile{}).Where("id = ?", id)
	if limit > 0 {
		q = q.Where("("+expired+" OR monthly_booking_count < ?)", now, limit)
	}
	res := q.Updates(map[string]any{
		"monthly_booking_count":    gorm.Expr("CASE WHEN "+expired+" THEN 1 ELSE monthly_booking_count + 1 END", now),
		"usage_window_start":       gorm.Expr("CASE WHEN "+expired+" THEN ? ELSE usage_window_start END", now, now),
		"booking_count_reset_date": gorm.Expr("CASE WHEN "+expired+" THEN ? ELSE booking_count_reset_date END", now, now.AddDate(0, 1, 0)),
		"updated_at":               now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var found int64
	if err := r.db.WithContext(ctx).Model(&models.ProviderProfile{}).Where("id = ?", id).Count(&found).Error; err != nil {
		return false, err
	}
	if found == 0 {
		return false, gorm.ErrRecordNotFound
	}
	return false, nil
}

// UpdateTier sets the plan tier shown on the profile.
func (r *Repository) UpdateTier(ctx context.Context, id uuid.UUID, tier enums.SubscriptionTier) error {
	return r.db.WithContext(ctx).
		Model(&models.ProviderProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"subscription_tier": tier,
			"updated_at":        time.Now().UTC(),
		}).Error
}
