package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/internal/messages"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

type stubMessagesService struct {
	sendFn     func(ctx context.Context, input messages.SendInput) (*messages.SendResult, error)
	markReadFn func(ctx context.Context, userID, messageID uuid.UUID) error
	threadFn   func(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error)
}

func (s *stubMessagesService) Send(ctx context.Context, input messages.SendInput) (*messages.SendResult, error) {
	return s.sendFn(ctx, input)
}

func (s *stubMessagesService) Conversations(ctx context.Context, userID uuid.UUID) ([]messages.Conversation, error) {
	return []messages.Conversation{}, nil
}

func (s *stubMessagesService) ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID) ([]models.Message, error) {
	return s.threadFn(ctx, userID, partnerID)
}

func (s *stubMessagesService) MarkRead(ctx context.Context, userID, messageID uuid.UUID) error {
	return s.markReadFn(ctx, userID, messageID)
}

func (s *stubMessagesService) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	return nil
}

func TestSendMessageReturnsMaskWarning(t *testing.T) {
	sender := uuid.New()
	receiver := uuid.New()
	svc := &stubMessagesService{
		sendFn: func(ctx context.Context, input messages.SendInput) (*messages.SendResult, error) {
			assert.Equal(t, sender, input.SenderID)
			assert.Equal(t, receiver, input.ReceiverID)
			assert.Equal(t, enums.MessageType(""), input.Type)
			return &messages.SendResult{
				Message: &models.Message{ID: uuid.New(), Content: "call me at [Hidden Phone]", ContentMasked: true},
				Masked:  true,
				Warning: messages.MaskedWarning,
			}, nil
		},
	}

	body := `{"receiver_id":"` + receiver.String() + `","content":"call me at 082 555 0101"}`
	req := authedRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body), sender, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	SendMessage(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var envelope struct {
		Data struct {
			Masked  bool   `json:"masked"`
			Warning string `json:"warning"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Masked)
	assert.Equal(t, messages.MaskedWarning, envelope.Data.Warning)
	assert.Equal(t, "call me at [Hidden Phone]", envelope.Data.Message.Content)
}

func TestSendMessageRejectsSystemType(t *testing.T) {
	body := `{"receiver_id":"` + uuid.NewString() + `","content":"hi","message_type":"system"}`
	req := authedRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body), uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	SendMessage(&stubMessagesService{}, testLogger())(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMarkMessageReadNotFound(t *testing.T) {
	svc := &stubMessagesService{
		markReadFn: func(ctx context.Context, userID, messageID uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "message not found")
		},
	}
	req := authedRequest(http.MethodPost, "/", nil, uuid.New(), enums.UserRoleCustomer)
	req = withParams(req, map[string]string{"messageId": uuid.NewString()})
	resp := httptest.NewRecorder()
	MarkMessageRead(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestConversationMessagesUsesPartnerParam(t *testing.T) {
	userID := uuid.New()
	partnerID := uuid.New()
	svc := &stubMessagesService{
		threadFn: func(ctx context.Context, uid, pid uuid.UUID) ([]models.Message, error) {
			assert.Equal(t, userID, uid)
			assert.Equal(t, partnerID, pid)
			return []models.Message{{ID: uuid.New(), Content: "hello"}}, nil
		},
	}
	req := authedRequest(http.MethodGet, "/", nil, userID, enums.UserRoleCustomer)
	req = withParams(req, map[string]string{"partnerId": partnerID.String()})
	resp := httptest.NewRecorder()
	ConversationMessages(svc, testLogger())(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}
