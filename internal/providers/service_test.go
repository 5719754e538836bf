package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/dbtest"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

type stubBookingReader struct {
	booking *models.Booking
	err     error
}

func (s stubBookingReader) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.booking == nil || s.booking.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.booking, nil
}

type failingProfileRepo struct{ err error }

func (f failingProfileRepo) Create(ctx context.Context, profile *models.ProviderProfile) error {
	return f.err
}

func (f failingProfileRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	return nil, f.err
}

func (f failingProfileRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error) {
	return nil, f.err
}

func (f failingProfileRepo) Update(ctx context.Context, id uuid.UUID, columns map[string]any, now time.Time) error {
	return f.err
}

func strPtr(v string) *string { return &v }

func seedProfile(t *testing.T, repo *Repository) *models.ProviderProfile {
	t.Helper()
	profile := CreateProfileDTO{
		UserID:       uuid.New(),
		BusinessName: "Ace Plumbing",
		ServiceAreas: []string{"Lagos"},
		ContactEmail: strPtr("john.doe@example.com"),
		ContactPhone: strPtr("+1234567890"),
	}.ToModel(time.Now().UTC())
	require.NoError(t, repo.Create(context.Background(), profile))
	return profile
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, stubBookingReader{})
	require.Error(t, err)

	_, err = NewService(failingProfileRepo{}, nil)
	require.Error(t, err)
}

func TestGetProfileMasksContactForOthers(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)

	dto, err := svc.GetProfile(context.Background(), uuid.New(), profile.ID)
	require.NoError(t, err)
	assert.True(t, dto.ContactMasked)
	require.NotNil(t, dto.ContactEmail)
	assert.Equal(t, "j***@***.com", *dto.ContactEmail)
	assert.Equal(t, "***-***-7890", *dto.ContactPhone)
	assert.Equal(t, []string{"Lagos"}, dto.ServiceAreas)
}

func TestGetProfileRevealsContactToOwner(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)

	dto, err := svc.GetProfile(context.Background(), profile.UserID, profile.ID)
	require.NoError(t, err)
	assert.False(t, dto.ContactMasked)
	assert.Equal(t, "john.doe@example.com", *dto.ContactEmail)
}

func TestGetProfileAnonymousViewerSeesMasked(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)

	dto, err := svc.GetProfile(context.Background(), uuid.Nil, profile.ID)
	require.NoError(t, err)
	assert.True(t, dto.ContactMasked)
}

func TestGetProfileNotFound(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)), stubBookingReader{})
	require.NoError(t, err)

	_, err = svc.GetProfile(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestGetProfileDependencyError(t *testing.T) {
	svc, err := NewService(failingProfileRepo{err: errors.New("boom")}, stubBookingReader{})
	require.NoError(t, err)

	_, err = svc.GetProfile(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestCreateProfileDefaults(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)

	userID := uuid.New()
	dto, err := svc.Create(context.Background(), CreateProfileDTO{UserID: userID, BusinessName: "  Sparkle Cleaning "})
	require.NoError(t, err)
	assert.Equal(t, "Sparkle Cleaning", dto.BusinessName)
	assert.Equal(t, enums.SubscriptionTierFree, dto.SubscriptionTier)
	assert.True(t, dto.AutoRevealContact)

	stored, err := repo.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.MonthlyBookingCount)
	assert.True(t, stored.BookingCountResetDate.After(time.Now().UTC().AddDate(0, 0, 27)))

	_, err = svc.Create(context.Background(), CreateProfileDTO{UserID: userID, BusinessName: "Again"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreateProfileValidation(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)), stubBookingReader{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateProfileDTO{UserID: uuid.New(), BusinessName: " "})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Create(context.Background(), CreateProfileDTO{BusinessName: "x"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestBookingContact(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	customerID := uuid.New()
	revealedAt := time.Now().UTC()

	booking := &models.Booking{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProviderID: profile.ID,
		Status:     enums.BookingStatusConfirmed,
	}

	cases := []struct {
		name       string
		viewer     uuid.UUID
		revealed   bool
		wantMasked bool
		wantCode   pkgerrors.Code
	}{
		{name: "customer after reveal", viewer: customerID, revealed: true},
		{name: "customer before reveal", viewer: customerID, revealed: false, wantMasked: true},
		{name: "provider always", viewer: profile.UserID, revealed: false},
		{name: "stranger", viewer: uuid.New(), revealed: true, wantCode: pkgerrors.CodeForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := *booking
			b.ContactRevealed = tc.revealed
			if tc.revealed {
				b.ContactRevealedAt = &revealedAt
			}
			svc, err := NewService(repo, stubBookingReader{booking: &b})
			require.NoError(t, err)

			out, err := svc.BookingContact(context.Background(), tc.viewer, b.ID)
			if tc.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantCode, pkgerrors.As(err).Code())
				return
			}
			require.NoError(t, err)
			if tc.wantMasked {
				assert.Equal(t, "j***@***.com", *out.ContactEmail)
			} else {
				assert.Equal(t, "john.doe@example.com", *out.ContactEmail)
			}
		})
	}
}

func TestBookingContactMissingBooking(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)), stubBookingReader{})
	require.NoError(t, err)

	_, err = svc.BookingContact(context.Background(), uuid.New(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRepositoryUsageCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		claimed, err := repo.ClaimBookingSlot(ctx, profile.ID, 2, now)
		require.NoError(t, err)
		assert.True(t, claimed)
	}
	claimed, err := repo.ClaimBookingSlot(ctx, profile.ID, 2, now)
	require.NoError(t, err)
	assert.False(t, claimed, "window full")
	stored, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MonthlyBookingCount)

	claimed, err = repo.ClaimBookingSlot(ctx, profile.ID, 0, now)
	require.NoError(t, err)
	assert.True(t, claimed, "no cap")

	reset, err := repo.ResetUsageIfExpired(ctx, profile.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, reset, "window still open")

	later := stored.BookingCountResetDate.Add(time.Hour)
	reset, err = repo.ResetUsageIfExpired(ctx, profile.ID, later)
	require.NoError(t, err)
	assert.True(t, reset)

	reset, err = repo.ResetUsageIfExpired(ctx, profile.ID, later)
	require.NoError(t, err)
	assert.False(t, reset, "second reset in the same instant is a no-op")

	stored, err = repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.MonthlyBookingCount)
	assert.True(t, stored.UsageWindowStart.Equal(later))

	_, err = repo.ClaimBookingSlot(ctx, uuid.New(), 2, now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryClaimBookingSlotRestartsExpiredWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	limit := 1

	claimed, err := repo.ClaimBookingSlot(ctx, profile.ID, limit, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)

	later := profile.BookingCountResetDate.Add(time.Hour)
	claimed, err = repo.ClaimBookingSlot(ctx, profile.ID, limit, later)
	require.NoError(t, err)
	assert.True(t, claimed, "a full but expired window restarts")

	stored, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MonthlyBookingCount)
	assert.True(t, stored.UsageWindowStart.Equal(later))
	assert.True(t, stored.BookingCountResetDate.Equal(later.AddDate(0, 1, 0)))
}

func TestRepositoryResetExpiredUsageBulk(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	first := seedProfile(t, repo)
	seedProfile(t, repo)

	_, err := repo.ClaimBookingSlot(ctx, first.ID, 0, time.Now().UTC())
	require.NoError(t, err)
	n, err := repo.ResetExpiredUsage(ctx, time.Now().UTC().AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, repo.UpdateTier(ctx, first.ID, enums.SubscriptionTierPro))
	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierPro, stored.SubscriptionTier)
	assert.Equal(t, 0, stored.MonthlyBookingCount)
}

func TestUpdateProfileEditsOwnProfile(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)
	ctx := context.Background()

	off := false
	dto, err := svc.Update(ctx, profile.UserID, UpdateProfileDTO{
		BusinessName:      strPtr("  Ace Plumbing & Gas "),
		Bio:               strPtr("Licensed since 2009"),
		ContactPhone:      strPtr(""),
		ServiceAreas:      []string{"Lagos", "Abuja"},
		AutoRevealContact: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, dto.ID)
	assert.Equal(t, "Ace Plumbing & Gas", dto.BusinessName)
	require.NotNil(t, dto.Bio)
	assert.Equal(t, "Licensed since 2009", *dto.Bio)
	assert.Nil(t, dto.ContactPhone)
	assert.Equal(t, "john.doe@example.com", *dto.ContactEmail)
	assert.Equal(t, []string{"Lagos", "Abuja"}, dto.ServiceAreas)
	assert.False(t, dto.AutoRevealContact)
	assert.Equal(t, enums.SubscriptionTierFree, dto.SubscriptionTier)

	stored, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.BookingCountResetDate.Unix(), stored.BookingCountResetDate.Unix())
}

func TestUpdateProfileRejectsBlankNameAndMissingProfile(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	profile := seedProfile(t, repo)
	svc, err := NewService(repo, stubBookingReader{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Update(ctx, profile.UserID, UpdateProfileDTO{BusinessName: strPtr("   ")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Update(ctx, uuid.New(), UpdateProfileDTO{Bio: strPtr("hi")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	dto, err := svc.Update(ctx, profile.UserID, UpdateProfileDTO{})
	require.NoError(t, err)
	assert.Equal(t, "Ace Plumbing", dto.BusinessName)
}
