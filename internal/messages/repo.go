package messages

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
)

// Repository exposes persistence helpers for direct messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListVisible(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error)
	ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error)
	MarkRead(ctx context.Context, receiverID, messageID uuid.UUID, now time.Time) (messageMarkResult, error)
	MarkThreadRead(ctx context.Context, receiverID, senderID uuid.UUID, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, messageID uuid.UUID, column string) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a messages repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type messageMarkResult struct {
	Updated bool
	Found   bool
}

const (
	columnDeletedBySender   = "deleted_by_sender"
	columnDeletedByReceiver = "deleted_by_receiver"
)

// visibleTo matches messages the user exchanged and has not deleted on their side.
const visibleTo = "((sender_id = ? AND deleted_by_sender = ?) OR (receiver_id = ? AND deleted_by_receiver = ?))"

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ListVisible returns the user's messages newest first.
func (r *repositoryImpl) ListVisible(ctx context.Context, userID uuid.UUID, limit int) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where(visibleTo, userID, false, userID, false).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListThread returns the conversation with partnerID oldest first.
func (r *repositoryImpl) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ? AND deleted_by_sender = ?) OR (sender_id = ? AND receiver_id = ? AND deleted_by_receiver = ?)",
			userID, partnerID, false, partnerID, userID, false).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, receiverID, messageID uuid.UUID, now time.Time) (messageMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND receiver_id = ? AND is_read = ?", messageID, receiverID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return messageMarkResult{}, result.Error
	}

	mark := messageMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND receiver_id = ?", messageID, receiverID).
		Count(&count).Error; err != nil {
		return messageMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkThreadRead(ctx context.Context, receiverID, senderID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) SoftDelete(ctx context.Context, messageID uuid.UUID, column string) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		UpdateColumn(column, true).Error
}
