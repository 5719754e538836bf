package messages

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

// MaxContentLength caps a single message body in characters.
const MaxContentLength = 4000

// conversationScanLimit bounds how many recent messages feed the inbox grouping.
const conversationScanLimit = 1000

// MaskedWarning is returned to the sender when contact details were hidden.
const MaskedWarning = "Contact details were hidden. They can be shared once a booking is confirmed."

// Service defines direct messaging operations.
type Service interface {
	Send(ctx context.Context, input SendInput) (*SendResult, error)
	Conversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error)
	MarkRead(ctx context.Context, userID, messageID uuid.UUID) error
	Delete(ctx context.Context, userID, messageID uuid.UUID) error
}

type contentFilter interface {
	ContainsSensitiveContent(text string) bool
	MaskSensitiveContent(text string) string
}

type bookingChecker interface {
	HasBookingBetweenUsers(ctx context.Context, userA, userB uuid.UUID, statuses []enums.BookingStatus) (bool, error)
}

type maskObserver interface {
	IncMaskedMessage()
}

// SendInput describes a new message.
type SendInput struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Content    string
	BookingID  *uuid.UUID
	Type       enums.MessageType
}

// SendResult carries the stored message and any masking warning.
type SendResult struct {
	Message *models.Message `json:"message"`
	Masked  bool            `json:"masked"`
	Warning string          `json:"warning,omitempty"`
}

// Conversation summarizes the thread with one partner.
type Conversation struct {
	PartnerID   uuid.UUID      `json:"partner_id"`
	LastMessage models.Message `json:"last_message"`
	UnreadCount int            `json:"unread_count"`
}

// ServiceParams wires messaging dependencies.
type ServiceParams struct {
	Repo     Repository
	Bookings bookingChecker
	Filter   contentFilter
	Metrics  maskObserver
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	bookings bookingChecker
	filter   contentFilter
	metrics  maskObserver
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires messages dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "messages repository required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "booking checker required")
	}
	if params.Filter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "content filter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		bookings: params.Bookings,
		filter:   params.Filter,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	if input.SenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sender required")
	}
	if input.ReceiverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver id required")
	}
	if input.ReceiverID == input.SenderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot message yourself")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content too long").
			WithDetails(map[string]any{"max_length": MaxContentLength})
	}
	msgType := input.Type
	if msgType == "" {
		msgType = enums.MessageTypeText
	}
	if !msgType.IsValid() || msgType == enums.MessageTypeSystem {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid message type")
	}

	result := &SendResult{}
	if s.filter.ContainsSensitiveContent(content) {
		allowed, err := s.bookings.HasBookingBetweenUsers(ctx, input.SenderID, input.ReceiverID, enums.ActiveBookingStatuses)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking between users")
		}
		if !allowed {
			content = s.filter.MaskSensitiveContent(content)
			result.Masked = true
			result.Warning = MaskedWarning
			if s.metrics != nil {
				s.metrics.IncMaskedMessage()
			}
		}
	}

	message := &models.Message{
		SenderID:      input.SenderID,
		ReceiverID:    input.ReceiverID,
		BookingID:     input.BookingID,
		Content:       content,
		Type:          msgType,
		ContentMasked: result.Masked,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create message")
	}

	if result.Masked {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"message_id":  message.ID.String(),
			"sender_id":   input.SenderID.String(),
			"receiver_id": input.ReceiverID.String(),
		})
		s.logg.Info(logCtx, "message contact details masked")
	}

	result.Message = message
	return result, nil
}

func (s *service) Conversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	rows, err := s.repo.ListVisible(ctx, userID, conversationScanLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	conversations := []Conversation{}
	index := map[uuid.UUID]int{}
	for _, row := range rows {
		partner := row.SenderID
		if partner == userID {
			partner = row.ReceiverID
		}
		pos, ok := index[partner]
		if !ok {
			// rows are newest first so the first hit is the latest message
			index[partner] = len(conversations)
			conversations = append(conversations, Conversation{PartnerID: partner, LastMessage: row})
			pos = len(conversations) - 1
		}
		if row.ReceiverID == userID && !row.IsRead {
			conversations[pos].UnreadCount++
		}
	}
	return conversations, nil
}

func (s *service) ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}

	if _, err := s.repo.MarkThreadRead(ctx, userID, partnerID, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark conversation read")
	}

	rows, err := s.repo.ListThread(ctx, userID, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list conversation")
	}
	return rows, nil
}

func (s *service) MarkRead(ctx context.Context, userID, messageID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if messageID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, messageID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark message read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if messageID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message id required")
	}

	message, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load message")
	}

	var column string
	switch userID {
	case message.SenderID:
		if message.DeletedBySender {
			return nil
		}
		column = columnDeletedBySender
	case message.ReceiverID:
		if message.DeletedByReceiver {
			return nil
		}
		column = columnDeletedByReceiver
	default:
		return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
	}

	if err := s.repo.SoftDelete(ctx, messageID, column); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete message")
	}
	return nil
}
