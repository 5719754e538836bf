package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/billing"
	"github.com/servicelink/servicelink-backend/internal/pricing"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// leadCounter counts lead unlocks inside a usage window. A nil tx reads
// outside any transaction.
type leadCounter interface {
	CountUnlockedBetween(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID, from, to time.Time) (int64, error)
}

type limitRecorder interface {
	IncLimitRejection(limit string)
}

// Service gates provider activity on the subscription tier and manages plan changes.
type Service interface {
	Tiers() []pricing.TierInfo
	Current(ctx context.Context, providerUserID uuid.UUID) (*CurrentSubscription, error)
	CheckBookingLimit(ctx context.Context, providerProfileID uuid.UUID) (bool, error)
	IncrementBookingCount(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error
	CheckLeadLimit(ctx context.Context, providerProfileID uuid.UUID) (bool, error)
	ReserveLeadUnlock(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error
	Upgrade(ctx context.Context, providerUserID uuid.UUID, tier enums.SubscriptionTier) (*CurrentSubscription, error)
	Downgrade(ctx context.Context, providerUserID uuid.UUID, tier enums.SubscriptionTier) (*CurrentSubscription, error)
	CalculateTransactionFee(amount decimal.Decimal, tier enums.SubscriptionTier) (decimal.Decimal, error)
	ApplyPeriodEnd(ctx context.Context, limit int) (int, error)
	ResetExpiredWindows(ctx context.Context) (int64, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Profiles          *providers.Repository
	BillingRepo       billing.Repository
	Leads             leadCounter
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           limitRecorder
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Usage is the provider's consumption inside the current window.
type Usage struct {
	BookingsUsed  int       `json:"bookings_used"`
	BookingLimit  *int      `json:"booking_limit,omitempty"`
	LeadsUsed     int64     `json:"leads_used"`
	LeadLimit     *int      `json:"lead_limit,omitempty"`
	WindowStart   time.Time `json:"window_start"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// CurrentSubscription is the plan view returned to providers.
type CurrentSubscription struct {
	ProviderProfileID  uuid.UUID                `json:"provider_profile_id"`
	Tier               pricing.TierInfo         `json:"tier"`
	Status             enums.SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time               `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	Usage              Usage                    `json:"usage"`
}

type service struct {
	profiles *providers.Repository
	billing  billing.Repository
	leads    leadCounter
	outbox   outbox.Emitter
	tx       txRunner
	metrics  limitRecorder
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Profiles == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("lead counter required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		profiles: params.Profiles,
		billing:  params.BillingRepo,
		leads:    params.Leads,
		outbox:   params.Outbox,
		tx:       params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) Tiers() []pricing.TierInfo {
	return pricing.Tiers()
}

func (s *service) CalculateTransactionFee(amount decimal.Decimal, tier enums.SubscriptionTier) (decimal.Decimal, error) {
	fee, err := pricing.CalculateTransactionFee(amount, tier)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "calculate transaction fee")
	}
	return fee, nil
}

// CheckBookingLimit reports whether the provider may accept another booking
// this month. An expired window is reset first and always allows.
func (s *service) CheckBookingLimit(ctx context.Context, providerProfileID uuid.UUID) (bool, error) {
	profile, err := s.loadProfile(ctx, providerProfileID)
	if err != nil {
		return false, err
	}
	limit, limited := pricing.TierOrFree(profile.SubscriptionTier).HasBookingLimit()
	if !limited {
		return true, nil
	}

	now := s.now()
	if now.After(profile.BookingCountResetDate) {
		if _, err := s.profiles.ResetUsageIfExpired(ctx, profile.ID, now); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset booking window")
		}
		return true, nil
	}

	allowed := profile.MonthlyBookingCount < limit
	if !allowed {
		s.recordRejection(ctx, "bookings", profile)
	}
	return allowed, nil
}

// IncrementBookingCount counts one booking against the window inside tx. The
// limit is enforced by the UPDATE itself, so two requests racing for the last
// slot cannot both pass.
func (s *service) IncrementBookingCount(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error {
	profiles := s.profiles.WithTx(tx)
	profile, err := profiles.FindByID(ctx, providerProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	limit, _ := pricing.TierOrFree(profile.SubscriptionTier).HasBookingLimit()
	claimed, err := profiles.ClaimBookingSlot(ctx, profile.ID, limit, s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment booking count")
	}
	if !claimed {
		s.recordRejection(ctx, "bookings", profile)
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "provider has reached their monthly booking limit").
			WithDetails(map[string]any{"tier": profile.SubscriptionTier})
	}
	return nil
}

// CheckLeadLimit counts unlocks inside the same usage window the booking
// counter uses, rolling it forward first when it has expired.
func (s *service) CheckLeadLimit(ctx context.Context, providerProfileID uuid.UUID) (bool, error) {
	profile, err := s.loadProfile(ctx, providerProfileID)
	if err != nil {
		return false, err
	}
	limit, limited := pricing.TierOrFree(profile.SubscriptionTier).HasLeadLimit()
	if !limited {
		return true, nil
	}

	used, _, _, err := s.leadUsage(ctx, nil, profile)
	if err != nil {
		return false, err
	}
	allowed := used < int64(limit)
	if !allowed {
		s.recordRejection(ctx, "leads", profile)
	}
	return allowed, nil
}

// ReserveLeadUnlock locks the provider row for the rest of tx and fails with
// LIMIT_EXCEEDED when the window is full. Unlocks for one provider are
// therefore counted one at a time; the caller inserts the lead in the same tx.
func (s *service) ReserveLeadUnlock(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "lead reservation needs a transaction")
	}
	profile, err := s.profiles.WithTx(tx).FindByIDForUpdate(ctx, providerProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock provider profile")
	}
	limit, limited := pricing.TierOrFree(profile.SubscriptionTier).HasLeadLimit()
	if !limited {
		return nil
	}
	used, _, _, err := s.leadUsage(ctx, tx, profile)
	if err != nil {
		return err
	}
	if used >= int64(limit) {
		s.recordRejection(ctx, "leads", profile)
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "monthly lead limit reached for your plan").
			WithDetails(map[string]any{"tier": profile.SubscriptionTier})
	}
	return nil
}

func (s *service) Current(ctx context.Context, providerUserID uuid.UUID) (*CurrentSubscription, error) {
	profile, err := s.loadProfileByUser(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	sub, err := s.billing.FindSubscription(ctx, profile.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return s.buildCurrent(ctx, profile, sub)
}

// Upgrade moves the provider to a higher paid tier and starts a fresh billing period.
func (s *service) Upgrade(ctx context.Context, providerUserID uuid.UUID, tier enums.SubscriptionTier) (*CurrentSubscription, error) {
	if !tier.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown subscription tier %q", tier)
	}
	if tier == enums.SubscriptionTierFree {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot upgrade to the free tier")
	}
	profile, err := s.loadProfileByUser(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	from := profile.SubscriptionTier
	if tier.Rank() <= from.Rank() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "tier %s is not above current tier %s", tier, from)
	}

	now := s.now()
	var sub *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billing.WithTx(tx)
		existing, err := repo.FindSubscription(ctx, profile.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		sub = existing
		if sub == nil {
			sub = &models.Subscription{ProviderProfileID: profile.ID}
		}
		sub.Tier = tier
		sub.Status = enums.SubscriptionStatusActive
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = now.AddDate(0, 1, 0)
		sub.CancelAtPeriodEnd = false
		sub.CancelledAt = nil
		if existing == nil {
			err = repo.CreateSubscription(ctx, sub)
		} else {
			err = repo.UpdateSubscription(ctx, sub)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
		}
		if err := s.profiles.WithTx(tx).UpdateTier(ctx, profile.ID, tier); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider tier")
		}
		return s.emitChange(ctx, tx, profile.ID, from, tier, false, sub.CurrentPeriodEnd)
	})
	if err != nil {
		return nil, err
	}

	profile.SubscriptionTier = tier
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_profile_id": profile.ID.String(),
		"from_tier":           from,
		"to_tier":             tier,
	}), "subscription upgraded")
	return s.buildCurrent(ctx, profile, sub)
}

// Downgrade to a paid tier applies immediately. Downgrading to free keeps the
// paid tier until the billing period ends; without a billing period it is immediate.
func (s *service) Downgrade(ctx context.Context, providerUserID uuid.UUID, tier enums.SubscriptionTier) (*CurrentSubscription, error) {
	if !tier.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown subscription tier %q", tier)
	}
	profile, err := s.loadProfileByUser(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	from := profile.SubscriptionTier
	if tier.Rank() >= from.Rank() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "tier %s is not below current tier %s", tier, from)
	}

	now := s.now()
	var sub *models.Subscription
	effective := tier
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billing.WithTx(tx)
		existing, err := repo.FindSubscription(ctx, profile.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		sub = existing

		if tier == enums.SubscriptionTierFree && sub != nil {
			sub.CancelAtPeriodEnd = true
			if err := repo.UpdateSubscription(ctx, sub); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule cancellation")
			}
			effective = from
			return s.emitChange(ctx, tx, profile.ID, from, tier, true, sub.CurrentPeriodEnd)
		}

		if sub != nil {
			sub.Tier = tier
			if err := repo.UpdateSubscription(ctx, sub); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
			}
		}
		if err := s.profiles.WithTx(tx).UpdateTier(ctx, profile.ID, tier); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider tier")
		}
		periodEnd := now
		if sub != nil {
			periodEnd = sub.CurrentPeriodEnd
		}
		return s.emitChange(ctx, tx, profile.ID, from, tier, false, periodEnd)
	})
	if err != nil {
		return nil, err
	}

	profile.SubscriptionTier = effective
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_profile_id": profile.ID.String(),
		"from_tier":           from,
		"to_tier":             tier,
		"deferred":            effective != tier,
	}), "subscription downgraded")
	return s.buildCurrent(ctx, profile, sub)
}

// ApplyPeriodEnd moves providers whose cancellation period ended back to the
// free tier. It returns how many subscriptions were closed.
func (s *service) ApplyPeriodEnd(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.billing.ListEndedCancellations(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ended subscriptions")
	}

	applied := 0
	for i := range due {
		sub := due[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			from := sub.Tier
			sub.Tier = enums.SubscriptionTierFree
			sub.Status = enums.SubscriptionStatusCancelled
			sub.CancelAtPeriodEnd = false
			sub.CancelledAt = &now
			if err := s.billing.WithTx(tx).UpdateSubscription(ctx, &sub); err != nil {
				return err
			}
			if err := s.profiles.WithTx(tx).UpdateTier(ctx, sub.ProviderProfileID, enums.SubscriptionTierFree); err != nil {
				return err
			}
			return s.emitChange(ctx, tx, sub.ProviderProfileID, from, enums.SubscriptionTierFree, false, sub.CurrentPeriodEnd)
		})
		if err != nil {
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply period end")
		}
		applied++
	}
	return applied, nil
}

func (s *service) ResetExpiredWindows(ctx context.Context) (int64, error) {
	n, err := s.profiles.ResetExpiredUsage(ctx, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset expired usage windows")
	}
	return n, nil
}

func (s *service) buildCurrent(ctx context.Context, profile *models.ProviderProfile, sub *models.Subscription) (*CurrentSubscription, error) {
	info := pricing.TierOrFree(profile.SubscriptionTier)
	leadsUsed, start, reset, err := s.leadUsage(ctx, nil, profile)
	if err != nil {
		return nil, err
	}
	out := &CurrentSubscription{
		ProviderProfileID: profile.ID,
		Tier:              info,
		Status:            enums.SubscriptionStatusActive,
		Usage: Usage{
			BookingsUsed:  profile.MonthlyBookingCount,
			BookingLimit:  info.BookingLimit,
			LeadsUsed:     leadsUsed,
			LeadLimit:     info.LeadLimit,
			WindowStart:   start,
			WindowResetAt: reset,
		},
	}
	if sub != nil {
		out.Status = sub.Status
		out.CurrentPeriodStart = &sub.CurrentPeriodStart
		out.CurrentPeriodEnd = &sub.CurrentPeriodEnd
		out.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	}
	return out, nil
}

// leadUsage returns the unlock count and the bounds of the current window,
// rolling an expired window forward first.
func (s *service) leadUsage(ctx context.Context, tx *gorm.DB, profile *models.ProviderProfile) (int64, time.Time, time.Time, error) {
	now := s.now()
	if now.After(profile.BookingCountResetDate) {
		profiles := s.profiles.WithTx(tx)
		if _, err := profiles.ResetUsageIfExpired(ctx, profile.ID, now); err != nil {
			return 0, time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset usage window")
		}
		refreshed, err := profiles.FindByID(ctx, profile.ID)
		if err != nil {
			return 0, time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload provider profile")
		}
		*profile = *refreshed
	}
	start, end := profile.UsageWindowStart, profile.BookingCountResetDate
	used, err := s.leads.CountUnlockedBetween(ctx, tx, profile.ID, start, end)
	if err != nil {
		return 0, time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count lead unlocks")
	}
	return used, start, end, nil
}

func (s *service) emitChange(ctx context.Context, tx *gorm.DB, profileID uuid.UUID, from, to enums.SubscriptionTier, deferred bool, periodEnd time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionChanged,
		AggregateType: enums.AggregateProviderProfile,
		AggregateID:   profileID,
		Data: payloads.SubscriptionChangedEvent{
			ProviderProfileID: profileID,
			From:              from,
			To:                to,
			CancelAtPeriodEnd: deferred,
			PeriodEnd:         periodEnd,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription event")
	}
	return nil
}

func (s *service) recordRejection(ctx context.Context, limit string, profile *models.ProviderProfile) {
	if s.metrics != nil {
		s.metrics.IncLimitRejection(limit)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_profile_id": profile.ID.String(),
		"tier":                profile.SubscriptionTier,
		"limit":               limit,
	}), "plan limit reached")
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID) (*models.ProviderProfile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return profile, nil
}

func (s *service) loadProfileByUser(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return profile, nil
}
