package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

const (
	maxDLQErrorLen   = 1024
	defaultDLQListed = 50
)

var (
	ErrDLQEntryNotFound = errors.New("no dead-letter entry for event")
	ErrEventNotPending  = errors.New("outbox event is missing or already published")
	ErrNotRequeueable   = errors.New("dead-letter reason does not allow requeue")
)

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	Reason enums.OutboxDLQErrorReason
	Type   enums.OutboxEventType
	Limit  int
}

// DLQRepository owns outbox_dlq, where the relay parks rows it gave up on.
type DLQRepository struct {
	db     *gorm.DB
	events *Repository
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, events: NewRepository(db)}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("invalid dead-letter reason %q", entry.ErrorReason)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		clipped := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil, nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return r.find(r.db.WithContext(ctx), eventID)
}

func (r *DLQRepository) find(q *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := q.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the newest failures first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQListed
	}
	q := r.db.WithContext(ctx)
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	if filter.Type != "" {
		q = q.Where("event_type = ?", filter.Type)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue hands a dead-lettered event back to the relay: the outbox row is
// reset and the DLQ entry removed in one transaction. Entries whose payload
// never decoded are refused.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var requeued *models.OutboxDLQ
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := r.find(tx, eventID)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrDLQEntryNotFound
		}
		if !entry.ErrorReason.Requeueable() {
			return fmt.Errorf("%w: %s", ErrNotRequeueable, entry.ErrorReason)
		}
		if err := r.events.ResetTx(tx, eventID); err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
			return err
		}
		requeued = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requeued, nil
}

// DeleteBefore drops entries that failed before cutoff. A nil tx uses the repository handle.
func (r *DLQRepository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
