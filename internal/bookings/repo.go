package bookings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate row-locks the booking for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns one page newest first along with the cursor of the last row
// when more rows remain.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]models.Booking, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filters.CustomerID != nil {
		query = query.Where("customer_id = ?", *filters.CustomerID)
	}
	if filters.ProviderID != nil {
		query = query.Where("provider_id = ?", *filters.ProviderID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}

	var rows []models.Booking
	if err := pagination.Keyset(query, filters.Cursor, filters.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, filters.Limit, func(m models.Booking) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

func (r *repository) ListByProviderStatus(ctx context.Context, providerProfileID uuid.UUID, statuses []enums.BookingStatus) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND status IN ?", providerProfileID, statuses).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByProviderStatus(ctx context.Context, providerProfileID uuid.UUID, status enums.BookingStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("provider_id = ? AND status = ?", providerProfileID, status).
		Count(&count).Error
	return count, err
}

// HasBookingBetweenUsers reports whether either user booked the other's
// provider profile with one of the given statuses.
func (r *repository) HasBookingBetweenUsers(ctx context.Context, userA, userB uuid.UUID, statuses []enums.BookingStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("bookings AS b").
		Joins("JOIN provider_profiles AS p ON p.id = b.provider_id").
		Where("b.status IN ?", statuses).
		Where("(b.customer_id = ? AND p.user_id = ?) OR (b.customer_id = ? AND p.user_id = ?)", userA, userB, userB, userA).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
