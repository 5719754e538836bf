package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/db/dbtest"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

func newService(t *testing.T) (Service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func strPtr(v string) *string { return &v }

func TestCreateValidates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.Nil, CreateInput{Title: "a", Description: "b", Category: "c"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Create(ctx, uuid.New(), CreateInput{Title: " ", Description: "b", Category: "c"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	negative := decimal.NewFromInt(-5)
	_, err = svc.Create(ctx, uuid.New(), CreateInput{Title: "a", Description: "b", Category: "c", Budget: &negative})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	budget := decimal.RequireFromString("150.00")

	post, err := svc.Create(ctx, uuid.New(), CreateInput{
		Title:       "Fix leaking tap",
		Description: "Kitchen tap drips",
		Category:    "plumbing",
		Location:    strPtr("Cape Town"),
		Budget:      &budget,
		Tags:        []string{"urgent"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.JobPostStatusOpen, post.Status)

	loaded, err := svc.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix leaking tap", loaded.Title)
	require.NotNil(t, loaded.Budget)
	assert.True(t, loaded.Budget.Equal(budget))
	assert.Equal(t, []string{"urgent"}, []string(loaded.Tags))

	_, err = svc.Get(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestListOpenPagesAndFilters(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	customer := uuid.New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.JobPost{
			CustomerID:  customer,
			Title:       "job",
			Description: "d",
			Category:    "cleaning",
			Location:    strPtr("Durban North"),
			Status:      enums.JobPostStatusOpen,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.JobPost{
		CustomerID: customer, Title: "other", Description: "d", Category: "plumbing",
		Status: enums.JobPostStatusOpen, CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, repo.Create(ctx, &models.JobPost{
		CustomerID: customer, Title: "closed", Description: "d", Category: "cleaning",
		Status: enums.JobPostStatusClosed, CreatedAt: base.Add(2 * time.Hour),
	}))

	first, err := svc.ListOpen(ctx, ListParams{Category: "cleaning", Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	require.NotEmpty(t, first.Cursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[2].CreatedAt))

	second, err := svc.ListOpen(ctx, ListParams{Category: "cleaning", Limit: 3, Cursor: first.Cursor})
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Empty(t, second.Cursor)

	byLocation, err := svc.ListOpen(ctx, ListParams{Location: "durban"})
	require.NoError(t, err)
	assert.Len(t, byLocation.Items, 5)

	_, err = svc.ListOpen(ctx, ListParams{Cursor: "not-a-cursor"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	mine, err := svc.ListMine(ctx, customer, ListParams{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 7)
}

func TestCloseOnlyByOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := uuid.New()
	post, err := svc.Create(ctx, owner, CreateInput{Title: "a", Description: "b", Category: "c"})
	require.NoError(t, err)

	err = svc.Close(ctx, uuid.New(), post.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	require.NoError(t, svc.Close(ctx, owner, post.ID))
	loaded, err := svc.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.JobPostStatusClosed, loaded.Status)
}
