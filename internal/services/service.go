// Package services manages the priced offerings providers list on their
// profiles and customers pick from when booking.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error)
}

// Service exposes offering management. Writes are scoped to the caller's own
// provider profile.
type Service interface {
	Create(ctx context.Context, providerUserID uuid.UUID, input CreateInput) (*models.ServiceOffering, error)
	Update(ctx context.Context, providerUserID, id uuid.UUID, input UpdateInput) (*models.ServiceOffering, error)
	Delete(ctx context.Context, providerUserID, id uuid.UUID) error
	ListForProvider(ctx context.Context, providerProfileID uuid.UUID) ([]models.ServiceOffering, error)
}

// CreateInput captures a new offering. PricingModel defaults to fixed.
type CreateInput struct {
	Title        string
	Description  *string
	Price        *decimal.Decimal
	PricingModel string
	Unit         *string
}

// UpdateInput is a partial edit. Nil fields stay unchanged; an empty
// description or unit clears it.
type UpdateInput struct {
	Title        *string
	Description  *string
	Price        *decimal.Decimal
	PricingModel *string
	Unit         *string
}

// ServiceParams groups dependencies for the offering service.
type ServiceParams struct {
	Repo     *Repository
	Profiles profileFinder
	Clock    func() time.Time
}

type service struct {
	repo     *Repository
	profiles profileFinder
	now      func() time.Time
}

// NewService wires the offering service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("service offering repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		profiles: params.Profiles,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, providerUserID uuid.UUID, input CreateInput) (*models.ServiceOffering, error) {
	model := enums.PricingModelFixed
	if raw := strings.TrimSpace(input.PricingModel); raw != "" {
		parsed, err := enums.ParsePricingModel(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pricing model")
		}
		model = parsed
	}
	offering := &models.ServiceOffering{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(input.Title),
		Description:  optional(input.Description),
		Price:        input.Price,
		PricingModel: model,
		Unit:         optional(input.Unit),
	}
	if err := validate(offering); err != nil {
		return nil, err
	}

	profile, err := s.callerProfile(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	offering.ProviderProfileID = profile.ID
	offering.CreatedAt = now
	offering.UpdatedAt = now
	if err := s.repo.Create(ctx, offering); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create service offering")
	}
	return offering, nil
}

func (s *service) Update(ctx context.Context, providerUserID, id uuid.UUID, input UpdateInput) (*models.ServiceOffering, error) {
	profile, err := s.callerProfile(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service offering not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service offering")
	}
	if current.ProviderProfileID != profile.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service offering not found")
	}

	columns := map[string]any{}
	if input.Title != nil {
		current.Title = strings.TrimSpace(*input.Title)
		columns["title"] = current.Title
	}
	if input.Description != nil {
		current.Description = optional(input.Description)
		columns["description"] = current.Description
	}
	if input.Unit != nil {
		current.Unit = optional(input.Unit)
		columns["unit"] = current.Unit
	}
	if input.Price != nil {
		current.Price = input.Price
		columns["price"] = *input.Price
	}
	if input.PricingModel != nil {
		parsed, err := enums.ParsePricingModel(strings.TrimSpace(*input.PricingModel))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pricing model")
		}
		current.PricingModel = parsed
		columns["pricing_model"] = parsed
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return current, nil
	}

	now := s.now()
	updated, err := s.repo.Update(ctx, id, profile.ID, columns, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update service offering")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service offering not found")
	}
	current.UpdatedAt = now
	return current, nil
}

func (s *service) Delete(ctx context.Context, providerUserID, id uuid.UUID) error {
	profile, err := s.callerProfile(ctx, providerUserID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id, profile.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete service offering")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "service offering not found")
	}
	return nil
}

func (s *service) ListForProvider(ctx context.Context, providerProfileID uuid.UUID) ([]models.ServiceOffering, error) {
	if _, err := s.profiles.FindByID(ctx, providerProfileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	offerings, err := s.repo.ListByProvider(ctx, providerProfileID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list service offerings")
	}
	if offerings == nil {
		offerings = []models.ServiceOffering{}
	}
	return offerings, nil
}

func (s *service) callerProfile(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return profile, nil
}

func validate(o *models.ServiceOffering) error {
	if o.Title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if o.Price != nil && o.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if o.PricingModel.RequiresPrice() && o.Price == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "price is required unless the service is quote based").
			WithDetails(map[string]any{"pricing_model": o.PricingModel})
	}
	return nil
}

func optional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
