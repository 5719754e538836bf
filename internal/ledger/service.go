package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/pagination"
)

// Service records and summarises booking money movements.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error)
	HasCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, txnType enums.TransactionType) (bool, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error)
	ProviderTotals(ctx context.Context, providerProfileID uuid.UUID) (Totals, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a transaction row requires.
type RecordInput struct {
	CustomerID       uuid.UUID
	ProviderID       *uuid.UUID
	BookingID        *uuid.UUID
	Type             enums.TransactionType
	Status           enums.TransactionStatus
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	NetAmount        *decimal.Decimal
	PaymentReference *string
	GatewayStatus    *string
	Description      string
	Metadata         map[string]any
}

// Totals sums completed provider payouts.
type Totals struct {
	Gross decimal.Decimal `json:"total_earnings"`
	Fees  decimal.Decimal `json:"total_fees"`
	Net   decimal.Decimal `json:"net_earnings"`
	Count int             `json:"payment_count"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Record appends a transaction. NetAmount defaults to amount minus fee.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Transaction, error) {
	if input.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("customer id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("invalid transaction status %q", input.Status)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}

	net := input.Amount.Sub(input.Fee)
	if input.NetAmount != nil {
		net = *input.NetAmount
	}
	var metadata json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = raw
	}
	var description *string
	if input.Description != "" {
		description = &input.Description
	}

	txn := &models.Transaction{
		ID:               uuid.New(),
		CustomerID:       input.CustomerID,
		ProviderID:       input.ProviderID,
		BookingID:        input.BookingID,
		Type:             input.Type,
		Status:           input.Status,
		Amount:           input.Amount,
		Fee:              input.Fee,
		NetAmount:        net,
		PaymentReference: input.PaymentReference,
		GatewayStatus:    input.GatewayStatus,
		Description:      description,
		Metadata:         metadata,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) HasCompleted(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, txnType enums.TransactionType) (bool, error) {
	if bookingID == uuid.Nil {
		return false, fmt.Errorf("booking id is required")
	}
	if !txnType.IsValid() {
		return false, fmt.Errorf("invalid transaction type %q", txnType)
	}

	txns, err := s.repo.WithTx(tx).ListByBookingID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	for _, txn := range txns {
		if txn.Type == txnType && txn.Status == enums.TransactionStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	if reference == "" {
		return nil, fmt.Errorf("payment reference is required")
	}
	return s.repo.FindByReference(ctx, reference)
}

func (s *service) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	return s.repo.ListByBookingID(ctx, bookingID)
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Transaction, error) {
	return s.repo.ListByCustomer(ctx, customerID, pagination.NormalizeLimit(limit))
}

// ProviderTotals sums in Go with decimal so sqlite and postgres agree.
func (s *service) ProviderTotals(ctx context.Context, providerProfileID uuid.UUID) (Totals, error) {
	txns, err := s.repo.ListByProvider(ctx, providerProfileID, enums.TransactionTypePayment, enums.TransactionStatusCompleted)
	if err != nil {
		return Totals{}, err
	}
	totals := Totals{Gross: decimal.Zero, Fees: decimal.Zero, Net: decimal.Zero}
	for _, txn := range txns {
		totals.Gross = totals.Gross.Add(txn.Amount)
		totals.Fees = totals.Fees.Add(txn.Fee)
		totals.Net = totals.Net.Add(txn.NetAmount)
		totals.Count++
	}
	return totals, nil
}
