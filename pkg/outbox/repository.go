package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
)

var errNoTx = errors.New("transaction required")

// Repository owns outbox_events. Methods ending in Tx run on the caller's
// transaction so row locks taken by ClaimBatchTx stay held until it commits.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

func pendingFirst(q *gorm.DB) *gorm.DB {
	return q.Where("published_at IS NULL").Order("created_at ASC, id ASC")
}

// Pending lists undelivered rows, oldest first, without locking them.
func (r *Repository) Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := pendingFirst(r.db.WithContext(ctx)).Limit(limit).Find(&rows).Error
	return rows, err
}

// ClaimBatchTx locks up to limit deliverable rows. Rows locked by another
// relay are skipped, as are rows already at the attempt ceiling.
func (r *Repository) ClaimBatchTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := pendingFirst(tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}))
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, values map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(values).Error
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.update(tx, id, map[string]any{"published_at": at.UTC()})
}

// RecordFailureTx keeps the row pending and counts the attempt.
func (r *Repository) RecordFailureTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    cause.Error(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// ParkTx lifts the row to the attempt ceiling so no relay claims it again.
func (r *Repository) ParkTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    cause.Error(),
		"attempt_count": ceiling,
	})
}

// ResetTx makes a parked row deliverable again.
func (r *Repository) ResetTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errNoTx
	}
	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Updates(map[string]any{"attempt_count": 0, "last_error": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventNotPending
	}
	return nil
}

// DeletePublishedBefore prunes delivered rows older than cutoff. A nil tx uses the repository handle.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
