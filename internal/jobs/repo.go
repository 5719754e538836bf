package jobs

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
)

// Repository persists job posts.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to job post operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type listQuery struct {
	CustomerID *uuid.UUID
	Status     *enums.JobPostStatus
	Category   string
	Location   string
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *Repository) Create(ctx context.Context, post *models.JobPost) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.JobPost, error) {
	var post models.JobPost
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdateStatus changes the status of a post owned by customerID.
func (r *Repository) UpdateStatus(ctx context.Context, id, customerID uuid.UUID, status enums.JobPostStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.JobPost{}).
		Where("id = ? AND customer_id = ?", id, customerID).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}

// List returns one page newest first along with the cursor of the last row
// when more rows remain.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.JobPost, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.JobPost{})
	if q.CustomerID != nil {
		query = query.Where("customer_id = ?", *q.CustomerID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if location := strings.ToLower(strings.TrimSpace(q.Location)); location != "" {
		query = query.Where("LOWER(location) LIKE ?", "%"+location+"%")
	}

	var posts []models.JobPost
	if err := pagination.Keyset(query, q.Cursor, q.Limit).Find(&posts).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(posts, q.Limit, func(m models.JobPost) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}
