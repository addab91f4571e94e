package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"canteen-system/internal/apperr"
	"canteen-system/internal/models"
)

// TransactionStore persists gateway payment transactions
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new transaction store
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// CreateTransaction inserts a transaction in `created` status
func (s *TransactionStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = models.TransactionCreated

	err := s.db.Pool.QueryRow(ctx, InsertTransactionSQL,
		t.ID, t.OutletID, t.UserID, t.GatewayOrderID, t.Amount, t.Currency,
		string(t.Status), string(t.Channel), []byte(t.Metadata),
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns one transaction
func (s *TransactionStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	var status, channel string
	var metadata []byte

	err := s.db.Pool.QueryRow(ctx, GetTransactionSQL, id).Scan(
		&t.ID, &t.OutletID, &t.UserID, &t.GatewayOrderID, &t.GatewayPaymentID,
		&t.Amount, &t.Currency, &status, &channel, &metadata,
		&t.OrderReference, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	t.Status = models.TransactionStatus(status)
	t.Channel = models.PaymentChannel(channel)
	t.Metadata = metadata
	return &t, nil
}

// MarkPaid moves created → paid and reports whether this call won
func (s *TransactionStore) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, MarkTransactionPaidSQL, id, paymentID)
	if err != nil {
		return false, fmt.Errorf("mark transaction paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves created → failed and reports whether this call won
func (s *TransactionStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, MarkTransactionFailedSQL, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark transaction failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AttachOrder records the order a paid transaction produced
func (s *TransactionStore) AttachOrder(ctx context.Context, id uuid.UUID, reference string) error {
	tag, err := s.db.Pool.Exec(ctx, AttachOrderSQL, id, reference)
	if err != nil {
		return fmt.Errorf("attach order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidTransition("transaction %s already has an order", id)
	}
	return nil
}

// ClaimSettlement takes the settlement of a paid transaction that has no order yet.
// A claim older than staleAfter is treated as abandoned by a crashed or timed-out caller.
func (s *TransactionStore) ClaimSettlement(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, ClaimSettlementSQL, id, staleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSettlement drops the claim so a later callback can retry
func (s *TransactionStore) ReleaseSettlement(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Pool.Exec(ctx, ReleaseSettlementSQL, id); err != nil {
		return fmt.Errorf("release settlement: %w", err)
	}
	return nil
}

// RecordSettlementFailure notes why a paid transaction produced no order
func (s *TransactionStore) RecordSettlementFailure(ctx context.Context, id uuid.UUID, reason string) error {
	if _, err := s.db.Pool.Exec(ctx, RecordSettlementFailureSQL, id, reason); err != nil {
		return fmt.Errorf("record settlement failure: %w", err)
	}
	return nil
}
