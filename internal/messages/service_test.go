package messages

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/internal/privacy"
	"github.com/servicelink/servicelink-backend/pkg/db/dbtest"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
)

type stubBookingChecker struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubBookingChecker) HasBookingBetweenUsers(_ context.Context, _, _ uuid.UUID, statuses []enums.BookingStatus) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

type fixture struct {
	svc      Service
	repo     Repository
	bookings *stubBookingChecker
	registry *prometheus.Registry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	f := &fixture{
		repo:     NewRepository(dbtest.Open(t)),
		bookings: &stubBookingChecker{},
		registry: registry,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Bookings: f.bookings,
		Filter:   privacy.Default(),
		Metrics:  metrics.NewBookingMetrics(registry),
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Clock:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seed(t *testing.T, from, to uuid.UUID, content string, at time.Time) *models.Message {
	t.Helper()
	message := &models.Message{
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		Type:       enums.MessageTypeText,
		CreatedAt:  at,
	}
	require.NoError(t, f.repo.Create(context.Background(), message))
	return message
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	sender := uuid.New()

	tests := []struct {
		name  string
		input SendInput
		code  pkgerrors.Code
	}{
		{name: "missing sender", input: SendInput{ReceiverID: uuid.New(), Content: "hi"}, code: pkgerrors.CodeUnauthorized},
		{name: "missing receiver", input: SendInput{SenderID: sender, Content: "hi"}, code: pkgerrors.CodeValidation},
		{name: "self", input: SendInput{SenderID: sender, ReceiverID: sender, Content: "hi"}, code: pkgerrors.CodeValidation},
		{name: "blank content", input: SendInput{SenderID: sender, ReceiverID: uuid.New(), Content: "   "}, code: pkgerrors.CodeValidation},
		{name: "too long", input: SendInput{SenderID: sender, ReceiverID: uuid.New(), Content: strings.Repeat("a", MaxContentLength+1)}, code: pkgerrors.CodeValidation},
		{name: "system type", input: SendInput{SenderID: sender, ReceiverID: uuid.New(), Content: "hi", Type: enums.MessageTypeSystem}, code: pkgerrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, pkgerrors.As(err).Code())
		})
	}
}

func TestSendMasksContactWithoutBooking(t *testing.T) {
	f := newFixture(t)
	sender, receiver := uuid.New(), uuid.New()

	result, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "call me at 082 123 4567",
	})
	require.NoError(t, err)
	assert.True(t, result.Masked)
	assert.Equal(t, MaskedWarning, result.Warning)
	assert.Equal(t, "call me at [Hidden Phone]", result.Message.Content)
	assert.Equal(t, 1, f.bookings.calls)

	thread, err := f.repo.ListThread(context.Background(), sender, receiver)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.NotContains(t, thread[0].Content, "4567")
	assert.True(t, thread[0].ContentMasked)

	count, err := testutil.GatherAndCount(f.registry, "messages_masked_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSendKeepsContactWithActiveBooking(t *testing.T) {
	f := newFixture(t)
	f.bookings.allowed = true

	result, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Content:    "call me at 082 123 4567",
	})
	require.NoError(t, err)
	assert.False(t, result.Masked)
	assert.Empty(t, result.Warning)
	assert.Equal(t, "call me at 082 123 4567", result.Message.Content)
	assert.False(t, result.Message.ContentMasked)
}

func TestSendCleanContentSkipsBookingCheck(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Content:    "Can you come on Tuesday at 10?",
	})
	require.NoError(t, err)
	assert.False(t, result.Masked)
	assert.Equal(t, enums.MessageTypeText, result.Message.Type)
	assert.Zero(t, f.bookings.calls)
}

func TestSendBookingCheckFailure(t *testing.T) {
	f := newFixture(t)
	f.bookings.err = errors.New("db down")

	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Content:    "mail me at someone@example.org",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestConversationsGroupsByPartner(t *testing.T) {
	f := newFixture(t)
	me, alice, bob := uuid.New(), uuid.New(), uuid.New()
	base := f.now.Add(-time.Hour)

	f.seed(t, alice, me, "hello", base)
	f.seed(t, me, alice, "hi alice", base.Add(time.Minute))
	f.seed(t, alice, me, "are you free?", base.Add(2*time.Minute))
	f.seed(t, bob, me, "quote?", base.Add(3*time.Minute))
	f.seed(t, alice, bob, "not mine", base.Add(4*time.Minute))

	conversations, err := f.svc.Conversations(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	assert.Equal(t, bob, conversations[0].PartnerID)
	assert.Equal(t, "quote?", conversations[0].LastMessage.Content)
	assert.Equal(t, 1, conversations[0].UnreadCount)

	assert.Equal(t, alice, conversations[1].PartnerID)
	assert.Equal(t, "are you free?", conversations[1].LastMessage.Content)
	assert.Equal(t, 2, conversations[1].UnreadCount)
}

func TestConversationMessagesMarksPartnerMessagesRead(t *testing.T) {
	f := newFixture(t)
	me, partner := uuid.New(), uuid.New()
	base := f.now.Add(-time.Hour)

	f.seed(t, partner, me, "first", base)
	mine := f.seed(t, me, partner, "second", base.Add(time.Minute))
	f.seed(t, partner, me, "third", base.Add(2*time.Minute))

	require.NoError(t, f.svc.Delete(context.Background(), me, mine.ID))

	thread, err := f.svc.ConversationMessages(context.Background(), me, partner)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "first", thread[0].Content)
	assert.Equal(t, "third", thread[1].Content)
	for _, msg := range thread {
		assert.True(t, msg.IsRead)
		require.NotNil(t, msg.ReadAt)
	}

	// the partner still sees the message the viewer deleted
	partnerView, err := f.repo.ListThread(context.Background(), partner, me)
	require.NoError(t, err)
	assert.Len(t, partnerView, 3)
	assert.False(t, partnerView[1].IsRead)

	conversations, err := f.svc.Conversations(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Zero(t, conversations[0].UnreadCount)
}

func TestMarkReadOnlyForReceiver(t *testing.T) {
	f := newFixture(t)
	sender, receiver := uuid.New(), uuid.New()
	msg := f.seed(t, sender, receiver, "hello", f.now.Add(-time.Minute))

	err := f.svc.MarkRead(context.Background(), sender, msg.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	require.NoError(t, f.svc.MarkRead(context.Background(), receiver, msg.ID))
	// already read is still a success
	require.NoError(t, f.svc.MarkRead(context.Background(), receiver, msg.ID))

	stored, err := f.repo.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
}

func TestDeleteIsPerSide(t *testing.T) {
	f := newFixture(t)
	sender, receiver := uuid.New(), uuid.New()
	msg := f.seed(t, sender, receiver, "hello", f.now.Add(-time.Minute))

	err := f.svc.Delete(context.Background(), uuid.New(), msg.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	require.NoError(t, f.svc.Delete(context.Background(), receiver, msg.ID))
	stored, err := f.repo.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeletedByReceiver)
	assert.False(t, stored.DeletedBySender)

	receiverView, err := f.repo.ListVisible(context.Background(), receiver, 10)
	require.NoError(t, err)
	assert.Empty(t, receiverView)
	senderView, err := f.repo.ListVisible(context.Background(), sender, 10)
	require.NoError(t, err)
	assert.Len(t, senderView, 1)

	err = f.svc.Delete(context.Background(), sender, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
