package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
)

// Service manages customer job posts that providers browse for leads.
type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, input CreateInput) (*models.JobPost, error)
	Get(ctx context.Context, id uuid.UUID) (*models.JobPost, error)
	ListOpen(ctx context.Context, params ListParams) (*ListResult, error)
	ListMine(ctx context.Context, customerID uuid.UUID, params ListParams) (*ListResult, error)
	Close(ctx context.Context, customerID, id uuid.UUID) error
}

// CreateInput captures a new job post.
type CreateInput struct {
	Title       string
	Description string
	Category    string
	Location    *string
	Budget      *decimal.Decimal
	Tags        []string
}

// ListParams filters and pages job post listings.
type ListParams struct {
	Category string
	Location string
	Limit    int
	Cursor   string
}

// ListResult wraps a page of posts and the cursor for the next one.
type ListResult struct {
	Items  []models.JobPost `json:"items"`
	Cursor string           `json:"cursor"`
}

type service struct {
	repo *Repository
}

// NewService wires the job post repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("job post repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, customerID uuid.UUID, input CreateInput) (*models.JobPost, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	category := strings.TrimSpace(input.Category)
	if title == "" || description == "" || category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title, description and category are required")
	}
	if input.Budget != nil && input.Budget.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget must not be negative")
	}

	post := &models.JobPost{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Title:       title,
		Description: description,
		Category:    category,
		Location:    input.Location,
		Budget:      input.Budget,
		Tags:        pq.StringArray(append([]string{}, input.Tags...)),
		Status:      enums.JobPostStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job post")
	}
	return post, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.JobPost, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job post not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job post")
	}
	return post, nil
}

func (s *service) ListOpen(ctx context.Context, params ListParams) (*ListResult, error) {
	status := enums.JobPostStatusOpen
	return s.list(ctx, listQuery{Status: &status, Category: params.Category, Location: params.Location}, params)
}

func (s *service) ListMine(ctx context.Context, customerID uuid.UUID, params ListParams) (*ListResult, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	return s.list(ctx, listQuery{CustomerID: &customerID}, params)
}

func (s *service) Close(ctx context.Context, customerID, id uuid.UUID) error {
	updated, err := s.repo.UpdateStatus(ctx, id, customerID, enums.JobPostStatusClosed)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close job post")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "job post not found")
	}
	return nil
}

func (s *service) list(ctx context.Context, query listQuery, params ListParams) (*ListResult, error) {
	query.Limit = params.Limit
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list job posts")
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}
