package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelink/servicelink-backend/pkg/enums"
)

// Message is a direct message between two users. Each side deletes independently.
type Message struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SenderID          uuid.UUID         `gorm:"column:sender_id;type:uuid;not null;index" json:"sender_id"`
	ReceiverID        uuid.UUID         `gorm:"column:receiver_id;type:uuid;not null;index" json:"receiver_id"`
	BookingID         *uuid.UUID        `gorm:"column:booking_id;type:uuid" json:"booking_id"`
	Content           string            `gorm:"column:content;not null" json:"content"`
	Type              enums.MessageType `gorm:"column:type;type:message_type;not null;default:'text'" json:"type"`
	ContentMasked     bool              `gorm:"column:content_masked;not null;default:false" json:"content_masked"`
	IsRead            bool              `gorm:"column:is_read;not null;default:false" json:"is_read"`
	ReadAt            *time.Time        `gorm:"column:read_at" json:"read_at"`
	DeletedBySender   bool              `gorm:"column:deleted_by_sender;not null;default:false" json:"deleted_by_sender"`
	DeletedByReceiver bool              `gorm:"column:deleted_by_receiver;not null;default:false" json:"deleted_by_receiver"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
