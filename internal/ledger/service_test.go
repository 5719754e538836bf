package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/dbtest"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, txn *models.Transaction) error
	rows     []models.Transaction
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	return nil
}

func (f *fakeRepository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeRepository) ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	return f.rows, nil
}

func (f *fakeRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error) {
	return f.rows, nil
}

func (f *fakeRepository) ListByProvider(ctx context.Context, providerProfileID uuid.UUID, txnType enums.TransactionType, status enums.TransactionStatus) ([]models.Transaction, error) {
	return f.rows, nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestService_RecordDefaultsNetAmount(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	require.NoError(t, err)

	var created *models.Transaction
	repo.createFn = func(ctx context.Context, txn *models.Transaction) error {
		created = txn
		return nil
	}

	bookingID := uuid.New()
	got, err := svc.Record(context.Background(), nil, RecordInput{
		CustomerID:  uuid.New(),
		BookingID:   &bookingID,
		Type:        enums.TransactionTypePayment,
		Status:      enums.TransactionStatusCompleted,
		Amount:      dec("100.00"),
		Fee:         dec("8.25"),
		Description: "Provider payout",
		Metadata:    map[string]any{"booking_id": bookingID.String()},
	})
	require.NoError(t, err)
	require.Same(t, created, got)
	assert.True(t, got.NetAmount.Equal(dec("91.75")))
	assert.JSONEq(t, `{"booking_id":"`+bookingID.String()+`"}`, string(got.Metadata))
	require.NotNil(t, got.Description)
}

func TestService_RecordValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	require.NoError(t, err)

	cases := map[string]RecordInput{
		"missing customer": {Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusCompleted},
		"bad type":         {CustomerID: uuid.New(), Type: "loan", Status: enums.TransactionStatusCompleted},
		"bad status":       {CustomerID: uuid.New(), Type: enums.TransactionTypeDeposit, Status: "lost"},
		"negative amount":  {CustomerID: uuid.New(), Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusCompleted, Amount: dec("-1")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), nil, input)
			assert.Error(t, err)
		})
	}
}

func TestService_RecordPropagatesRepoError(t *testing.T) {
	repo := &fakeRepository{createFn: func(ctx context.Context, txn *models.Transaction) error {
		return errors.New("boom")
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), nil, RecordInput{
		CustomerID: uuid.New(),
		Type:       enums.TransactionTypeDeposit,
		Status:     enums.TransactionStatusCompleted,
		Amount:     dec("10"),
	})
	assert.EqualError(t, err, "boom")
}

func TestService_HasCompleted(t *testing.T) {
	repo := &fakeRepository{rows: []models.Transaction{
		{Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusPending},
		{Type: enums.TransactionTypePayment, Status: enums.TransactionStatusCompleted},
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	ok, err := svc.HasCompleted(context.Background(), nil, uuid.New(), enums.TransactionTypeDeposit)
	require.NoError(t, err)
	assert.False(t, ok, "pending deposit does not count")

	ok, err = svc.HasCompleted(context.Background(), nil, uuid.New(), enums.TransactionTypePayment)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.HasCompleted(context.Background(), nil, uuid.Nil, enums.TransactionTypePayment)
	assert.Error(t, err)
}

func TestService_ProviderTotals(t *testing.T) {
	repo := &fakeRepository{rows: []models.Transaction{
		{Amount: dec("100.00"), Fee: dec("8.25"), NetAmount: dec("91.75")},
		{Amount: dec("50.00"), Fee: dec("4.75"), NetAmount: dec("45.25")},
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	totals, err := svc.ProviderTotals(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, totals.Gross.Equal(dec("150.00")))
	assert.True(t, totals.Fees.Equal(dec("13.00")))
	assert.True(t, totals.Net.Equal(dec("137.00")))
	assert.Equal(t, 2, totals.Count)
}

func TestRepository_ReferenceIsUnique(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	ref := "ref_123"
	providerID := uuid.New()
	input := RecordInput{
		CustomerID:       uuid.New(),
		ProviderID:       &providerID,
		Type:             enums.TransactionTypeDeposit,
		Status:           enums.TransactionStatusCompleted,
		Amount:           dec("20.25"),
		PaymentReference: &ref,
	}
	_, err = svc.Record(ctx, nil, input)
	require.NoError(t, err)
	_, err = svc.Record(ctx, nil, input)
	require.Error(t, err)

	found, err := svc.FindByReference(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Amount.Equal(dec("20.25")))

	missing, err := svc.FindByReference(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	history, err := svc.ListForCustomer(ctx, input.CustomerID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRepository_ProviderTotalsOnlyCompletedPayments(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	providerID := uuid.New()
	customerID := uuid.New()
	record := func(txnType enums.TransactionType, status enums.TransactionStatus, amount, fee string, provider *uuid.UUID) {
		_, err := svc.Record(ctx, nil, RecordInput{
			CustomerID: customerID,
			ProviderID: provider,
			Type:       txnType,
			Status:     status,
			Amount:     dec(amount),
			Fee:        dec(fee),
		})
		require.NoError(t, err)
	}
	record(enums.TransactionTypePayment, enums.TransactionStatusCompleted, "100.00", "8.25", &providerID)
	record(enums.TransactionTypePayment, enums.TransactionStatusPending, "40.00", "0", &providerID)
	record(enums.TransactionTypeDeposit, enums.TransactionStatusCompleted, "20.25", "0", &providerID)
	record(enums.TransactionTypePayment, enums.TransactionStatusCompleted, "81.00", "0", nil)

	totals, err := svc.ProviderTotals(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Count)
	assert.True(t, totals.Net.Equal(dec("91.75")))
}
