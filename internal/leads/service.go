package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/payloads"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
)

const leadsUniqueConstraint = "leads_job_post_provider_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type profileFinder interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error)
}

type jobPostFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.JobPost, error)
}

type limitGate interface {
	ReserveLeadUnlock(ctx context.Context, tx *gorm.DB, providerProfileID uuid.UUID) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service unlocks job posts as leads for providers.
type Service interface {
	UnlockLead(ctx context.Context, providerUserID, jobPostID uuid.UUID) (*UnlockResult, error)
	ListUnlocked(ctx context.Context, providerUserID uuid.UUID, limit int) ([]UnlockedLead, error)
	IsUnlocked(ctx context.Context, providerUserID, jobPostID uuid.UUID) (bool, error)
}

// UnlockResult reports the lead and whether it existed before the call.
type UnlockResult struct {
	Lead            *models.Lead    `json:"lead"`
	JobPost         *models.JobPost `json:"job_post"`
	AlreadyUnlocked bool            `json:"already_unlocked"`
}

// ServiceParams groups dependencies for the lead service.
type ServiceParams struct {
	Repo              *Repository
	Profiles          profileFinder
	JobPosts          jobPostFinder
	Gate              limitGate
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	RateLimiter       rateLimiter
	UnlockLimit       int
	UnlockWindow      time.Duration
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo         *Repository
	profiles     profileFinder
	jobs         jobPostFinder
	gate         limitGate
	outbox       outbox.Emitter
	tx           txRunner
	limiter      rateLimiter
	unlockLimit  int64
	unlockWindow time.Duration
	logg         *logger.Logger
	now          func() time.Time
}

// NewService validates and wires the lead service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("lead repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("provider repository required")
	}
	if params.JobPosts == nil {
		return nil, fmt.Errorf("job post repository required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("subscription gate required")
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
	window := params.UnlockWindow
	if window <= 0 {
		window = time.Minute
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:         params.Repo,
		profiles:     params.Profiles,
		jobs:         params.JobPosts,
		gate:         params.Gate,
		outbox:       params.Outbox,
		tx:           params.TransactionRunner,
		limiter:      params.RateLimiter,
		unlockLimit:  int64(params.UnlockLimit),
		unlockWindow: window,
		logg:         params.Logger,
		now:          func() time.Time { return clock().UTC() },
	}, nil
}

// UnlockLead is idempotent: a repeated unlock returns the existing lead and
// never consumes allowance.
func (s *service) UnlockLead(ctx context.Context, providerUserID, jobPostID uuid.UUID) (*UnlockResult, error) {
	profile, err := s.providerFor(ctx, providerUserID)
	if err != nil {
		return nil, err
	}

	post, err := s.jobs.FindByID(ctx, jobPostID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job post not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job post")
	}

	existing, err := s.repo.Find(ctx, jobPostID, profile.ID)
	switch {
	case err == nil:
		return &UnlockResult{Lead: existing, JobPost: post, AlreadyUnlocked: true}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}

	if post.Status != enums.JobPostStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job post is closed")
	}
	if err := s.throttle(ctx, profile.ID); err != nil {
		return nil, err
	}

	lead := &models.Lead{
		ID:                uuid.New(),
		JobPostID:         jobPostID,
		ProviderProfileID: profile.ID,
		Status:            enums.LeadStatusUnlocked,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.gate.ReserveLeadUnlock(ctx, tx, profile.ID); err != nil {
			return err
		}
		lead.UnlockedAt = s.now()
		if err := s.repo.WithTx(tx).Create(ctx, lead); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLeadUnlocked,
			AggregateType: enums.AggregateLead,
			AggregateID:   lead.ID,
			Actor:         &outbox.ActorRef{UserID: providerUserID, Role: string(enums.UserRoleProvider)},
			Data: payloads.LeadUnlockedEvent{
				LeadID:            lead.ID,
				JobPostID:         jobPostID,
				ProviderProfileID: profile.ID,
				UnlockedAt:        lead.UnlockedAt,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, leadsUniqueConstraint) || db.IsUniqueViolation(err, "") {
			// a concurrent unlock for the same pair won
			winner, findErr := s.repo.Find(ctx, jobPostID, profile.ID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload lead")
			}
			return &UnlockResult{Lead: winner, JobPost: post, AlreadyUnlocked: true}, nil
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlock lead")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"lead_id":             lead.ID.String(),
		"job_post_id":         jobPostID.String(),
		"provider_profile_id": profile.ID.String(),
	}), "lead unlocked")
	return &UnlockResult{Lead: lead, JobPost: post}, nil
}

func (s *service) ListUnlocked(ctx context.Context, providerUserID uuid.UUID, limit int) ([]UnlockedLead, error) {
	profile, err := s.providerFor(ctx, providerUserID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByProvider(ctx, profile.ID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list leads")
	}
	return rows, nil
}

func (s *service) IsUnlocked(ctx context.Context, providerUserID, jobPostID uuid.UUID) (bool, error) {
	profile, err := s.providerFor(ctx, providerUserID)
	if err != nil {
		return false, err
	}
	if _, err := s.repo.Find(ctx, jobPostID, profile.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	return true, nil
}

func (s *service) throttle(ctx context.Context, profileID uuid.UUID) error {
	if s.limiter == nil || s.unlockLimit <= 0 {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "lead_unlock:"+profileID.String(), s.unlockLimit, s.unlockWindow)
	if err != nil {
		// the plan limit still applies when redis is unavailable
		s.logg.Warn(s.logg.WithField(ctx, "provider_profile_id", profileID.String()), "lead unlock rate limiter unavailable")
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many unlock attempts, slow down")
	}
	return nil
}

func (s *service) providerFor(ctx context.Context, userID uuid.UUID) (*models.ProviderProfile, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider profile")
	}
	return profile, nil
}
