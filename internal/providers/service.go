package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/contactreveal"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

type profileRepository interface {
	Create(ctx context.Context, profile *models.ProviderProfile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error)
	Update(ctx context.Context, id uuid.UUID, columns map[string]any, now time.Time) error
}

type bookingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// Service exposes provider profile operations.
type Service interface {
	Create(ctx context.Context, input CreateProfileDTO) (*ProfileDTO, error)
	GetProfile(ctx context.Context, viewerID, profileID uuid.UUID) (*ProfileDTO, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error)
	Update(ctx context.Context, userID uuid.UUID, input UpdateProfileDTO) (*ProfileDTO, error)
	BookingContact(ctx context.Context, viewerID, bookingID uuid.UUID) (*BookingContactDTO, error)
}

// BookingContactDTO is what a booking party sees of the provider's contact details.
type BookingContactDTO struct {
	BookingID       uuid.UUID  `json:"booking_id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	BusinessName    string     `json:"business_name"`
	ContactEmail    *string    `json:"contact_email,omitempty"`
	ContactPhone    *string    `json:"contact_phone,omitempty"`
	ContactRevealed bool       `json:"contact_revealed"`
	RevealedAt      *time.Time `json:"contact_revealed_at,omitempty"`
}

type service struct {
	repo     profileRepository
	bookings bookingReader
	now      func() time.Time
}

// NewService builds a provider service.
func NewService(repo profileRepository, bookings bookingReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	if bookings == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	return &service{
		repo:     repo,
		bookings: bookings,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateProfileDTO) (*ProfileDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	input.BusinessName = strings.TrimSpace(input.BusinessName)
	if input.BusinessName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business name required")
	}

	model := input.ToModel(s.now())
	if err := s.repo.Create(ctx, model); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "provider profile already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider profile")
	}
	return FromModel(model, true), nil
}

func (s *service) GetProfile(ctx context.Context, viewerID, profileID uuid.UUID) (*ProfileDTO, error) {
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	// booking and auto-reveal state never widen the public view
	reveal := contactreveal.ShouldRevealContact(viewerID, profile.UserID, false, profile.AutoRevealContact)
	return FromModel(profile, reveal), nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*ProfileDTO, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return FromModel(profile, true), nil
}

// Update edits the caller's own profile. Tier and usage counters are not
// editable here.
func (s *service) Update(ctx context.Context, userID uuid.UUID, input UpdateProfileDTO) (*ProfileDTO, error) {
	if input.BusinessName != nil && strings.TrimSpace(*input.BusinessName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business name cannot be empty")
	}
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	if err := s.repo.Update(ctx, profile.ID, input.Columns(), s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider profile")
	}
	updated, err := s.loadProfile(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	return FromModel(updated, true), nil
}

func (s *service) BookingContact(ctx context.Context, viewerID, bookingID uuid.UUID) (*BookingContactDTO, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	profile, err := s.loadProfile(ctx, booking.ProviderID)
	if err != nil {
		return nil, err
	}

	isParty := viewerID == booking.CustomerID || viewerID == profile.UserID
	if !isParty {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this booking")
	}

	out := &BookingContactDTO{
		BookingID:       booking.ID,
		ProviderID:      profile.ID,
		BusinessName:    profile.BusinessName,
		ContactRevealed: booking.ContactRevealed,
		RevealedAt:      booking.ContactRevealedAt,
	}
	info := contactreveal.ContactInfo{Email: profile.ContactEmail, Phone: profile.ContactPhone}
	if viewerID != profile.UserID && !contactreveal.RevealForBooking(isParty, booking.ContactRevealed) {
		info = contactreveal.MaskContactInfo(info)
	}
	out.ContactEmail = info.Email
	out.ContactPhone = info.Phone
	return out, nil
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return profile, nil
}
