package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"canteen-system/internal/apperr"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

// Pricer reads current menu prices without reserving stock
type Pricer interface {
	GetItem(ctx context.Context, outletID, itemID uuid.UUID) (models.MenuItem, error)
}

// Outlets resolves an outlet and its gateway key pair
type Outlets interface {
	IsActive(ctx context.Context, outletID uuid.UUID) (bool, error)
	Credentials(ctx context.Context, outletID uuid.UUID) (models.GatewayCredentials, error)
}

// Transactions persists gateway payments. MarkPaid and MarkFailed report whether this call made the move.
// MarkPaid also claims the settlement; ClaimSettlement lets a repeat callback take over a paid
// transaction whose order was never created, unless another caller holds a fresh claim.
type Transactions interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ClaimSettlement(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (bool, error)
	ReleaseSettlement(ctx context.Context, id uuid.UUID) error
	AttachOrder(ctx context.Context, id uuid.UUID, reference string) error
	RecordSettlementFailure(ctx context.Context, id uuid.UUID, reason string) error
}

// settlementLease bounds how long a claim blocks retries after its holder went away
const settlementLease = 2 * time.Minute

// OrderPlacer creates the order for a settled payment
type OrderPlacer interface {
	PlacePaid(ctx context.Context, userID uuid.UUID, req *models.PlaceOrderRequest) (*models.Order, error)
}

// Service runs gateway checkout and settles verified callbacks
type Service struct {
	menu         Pricer
	outlets      Outlets
	transactions Transactions
	orders       OrderPlacer
	gateway      Gateway
	currency     string
	logger       *logger.Logger
}

// NewService creates a new payment service
func NewService(menu Pricer, outlets Outlets, transactions Transactions, orders OrderPlacer, gateway Gateway, currency string, log *logger.Logger) *Service {
	return &Service{
		menu:         menu,
		outlets:      outlets,
		transactions: transactions,
		orders:       orders,
		gateway:      gateway,
		currency:     currency,
		logger:       log,
	}
}

// StartCheckout prices the intent, opens a gateway order and records a created Transaction.
// No stock is reserved until the payment is verified.
func (s *Service) StartCheckout(ctx context.Context, p models.Principal, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	active, err := s.outlets.IsActive(ctx, req.OutletID)
	if err != nil {
		return nil, fmt.Errorf("check outlet: %w", err)
	}
	if !active {
		return nil, apperr.NotFound("outlet %s not found", req.OutletID)
	}

	creds, err := s.outlets.Credentials(ctx, req.OutletID)
	if err != nil {
		return nil, err
	}

	amount, err := s.price(ctx, req.OutletID, req.Lines)
	if err != nil {
		return nil, err
	}

	intent := models.OrderIntent{
		UserID:      p.UserID,
		OutletID:    req.OutletID,
		Lines:       req.Lines,
		Fulfillment: req.Fulfillment,
		Notes:       req.Notes,
	}
	metadata, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order intent: %w", err)
	}

	txID := uuid.New()
	gatewayOrderID, err := s.gateway.CreateOrder(ctx, creds, amount, s.currency, receipt(txID))
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	tx := &models.Transaction{
		ID:             txID,
		OutletID:       req.OutletID,
		UserID:         p.UserID,
		GatewayOrderID: gatewayOrderID,
		Amount:         amount,
		Currency:       s.currency,
		Channel:        models.ChannelGateway,
		Metadata:       metadata,
	}
	if err := s.transactions.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	s.logger.Info("checkout_started", "Gateway checkout started", logger.RequestIDFrom(ctx), map[string]interface{}{
		"transaction_id":   tx.ID.String(),
		"gateway_order_id": gatewayOrderID,
		"outlet_id":        req.OutletID.String(),
		"amount":           amount.StringFixed(2),
	})

	return &models.CheckoutResponse{
		TransactionID:  tx.ID,
		GatewayOrderID: gatewayOrderID,
		GatewayKeyID:   creds.KeyID,
		Amount:         amount,
		Currency:       s.currency,
	}, nil
}

// price totals the intent at current ledger prices; items already out of stock are refused early
func (s *Service) price(ctx context.Context, outletID uuid.UUID, lines []models.LineRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, line := range lines {
		item, err := s.menu.GetItem(ctx, outletID, line.MenuItemID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("line %d: %w", i+1, err)
		}
		if !item.Available || item.Quantity < line.Quantity {
			return decimal.Zero, apperr.InsufficientStock("%s is no longer available in that quantity", item.Name)
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total, nil
}

// HandleCallback verifies a gateway success report and settles the Transaction exactly once.
// Only the caller that moves the Transaction to paid creates the Order; repeats return the existing reference.
func (s *Service) HandleCallback(ctx context.Context, cb *models.PaymentCallback) (*models.SettlementResult, error) {
	requestID := logger.RequestIDFrom(ctx)

	if cb.TransactionID == uuid.Nil || cb.GatewayOrderID == "" || cb.GatewayPaymentID == "" || cb.Signature == "" {
		return nil, apperr.InvalidInput("transaction_id, gateway_order_id, gateway_payment_id and signature are required")
	}

	tx, err := s.transactions.GetTransaction(ctx, cb.TransactionID)
	if err != nil {
		return nil, err
	}

	if tx.GatewayOrderID != cb.GatewayOrderID {
		s.rejectSignature(requestID, tx, "gateway order mismatch")
		return nil, apperr.VerificationFailed()
	}

	creds, err := s.outlets.Credentials(ctx, tx.OutletID)
	if err != nil {
		return nil, err
	}

	if !Verify(creds.KeySecret, cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		s.rejectSignature(requestID, tx, "signature mismatch")
		return nil, apperr.VerificationFailed()
	}

	won, err := s.transactions.MarkPaid(ctx, tx.ID, cb.GatewayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("mark transaction paid: %w", err)
	}
	if !won {
		if tx.GatewayPaymentID == nil || *tx.GatewayPaymentID != cb.GatewayPaymentID {
			return s.settled(ctx, tx.ID)
		}
		claimed, err := s.transactions.ClaimSettlement(ctx, tx.ID, settlementLease)
		if err != nil {
			return nil, fmt.Errorf("claim settlement: %w", err)
		}
		if !claimed {
			return s.settled(ctx, tx.ID)
		}
		s.logger.Info("settlement_retry", "Retrying order creation for paid transaction", requestID, map[string]interface{}{
			"transaction_id": tx.ID.String(),
		})
	}

	order, err := s.settle(ctx, tx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment_settled", "Gateway payment settled", requestID, map[string]interface{}{
		"transaction_id":     tx.ID.String(),
		"gateway_payment_id": cb.GatewayPaymentID,
		"order_reference":    order.Reference,
	})

	return &models.SettlementResult{
		TransactionID:  tx.ID,
		OrderReference: order.Reference,
	}, nil
}

// settle creates and attaches the order for a transaction whose settlement this caller holds.
// Business refusals are final; any other failure releases the claim so the next callback retries.
func (s *Service) settle(ctx context.Context, tx *models.Transaction) (*models.Order, error) {
	var intent models.OrderIntent
	if err := json.Unmarshal(tx.Metadata, &intent); err != nil {
		s.recordFailure(ctx, tx.ID, "unreadable order intent")
		return nil, fmt.Errorf("decode order intent: %w", err)
	}

	req := intent.Request()
	order, err := s.orders.PlacePaid(ctx, tx.UserID, &req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			s.release(ctx, tx.ID, err)
			return nil, err
		}
		s.recordFailure(ctx, tx.ID, err.Error())
		return nil, err
	}

	if err := s.transactions.AttachOrder(ctx, tx.ID, order.Reference); err != nil {
		s.recordFailure(ctx, tx.ID, fmt.Sprintf("order %s created but not attached: %v", order.Reference, err))
		return nil, fmt.Errorf("attach order %s: %w", order.Reference, err)
	}
	return order, nil
}

// settled answers a callback that lost the created -> paid race
func (s *Service) settled(ctx context.Context, id uuid.UUID) (*models.SettlementResult, error) {
	tx, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status == models.TransactionPaid && tx.OrderReference != nil {
		return &models.SettlementResult{
			TransactionID:  tx.ID,
			OrderReference: *tx.OrderReference,
			Duplicate:      true,
		}, nil
	}
	if tx.Status == models.TransactionPaid && tx.FailureReason != nil {
		return nil, apperr.InvalidTransition("transaction %s is paid but produced no order: %s", id, *tx.FailureReason)
	}
	if tx.Status == models.TransactionPaid {
		return nil, apperr.InvalidTransition("transaction %s is still being settled", id)
	}
	return nil, apperr.InvalidTransition("transaction %s is %s", id, tx.Status)
}

// HandleFailure records a gateway failure report; a Transaction fails at most once and never after paid
func (s *Service) HandleFailure(ctx context.Context, f *models.PaymentFailure) (*models.Transaction, error) {
	if f.TransactionID == uuid.Nil || f.GatewayOrderID == "" {
		return nil, apperr.InvalidInput("transaction_id and gateway_order_id are required")
	}

	tx, err := s.transactions.GetTransaction(ctx, f.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.GatewayOrderID != f.GatewayOrderID {
		s.rejectSignature(logger.RequestIDFrom(ctx), tx, "gateway order mismatch on failure report")
		return nil, apperr.VerificationFailed()
	}

	reason := strings.TrimSpace(f.Reason)
	if reason == "" {
		reason = "payment_failed"
	}

	won, err := s.transactions.MarkFailed(ctx, tx.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("mark transaction failed: %w", err)
	}
	if !won {
		return nil, apperr.InvalidTransition("transaction %s is no longer awaiting payment", tx.ID)
	}

	s.logger.Info("payment_failed", "Gateway payment failed", logger.RequestIDFrom(ctx), map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"reason":         reason,
	})

	return s.transactions.GetTransaction(ctx, tx.ID)
}

func (s *Service) rejectSignature(requestID string, tx *models.Transaction, reason string) {
	s.logger.Security("payment_verification_failed", "Rejected gateway callback", requestID, map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"outlet_id":      tx.OutletID.String(),
		"reason":         reason,
	})
}

// recordFailure keeps the paid Transaction and notes why no order exists so it can be refunded by hand
func (s *Service) recordFailure(ctx context.Context, id uuid.UUID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := s.transactions.RecordSettlementFailure(ctx, id, reason)
	s.logger.Error("settlement_failed", "Paid transaction produced no order, refund required", logger.RequestIDFrom(ctx), err, map[string]interface{}{
		"transaction_id": id.String(),
		"reason":         reason,
	})
}

// release gives up the claim after a failure that a repeat callback may get past
func (s *Service) release(ctx context.Context, id uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	fields := map[string]interface{}{"transaction_id": id.String()}
	if err := s.transactions.ReleaseSettlement(ctx, id); err != nil {
		s.logger.Error("settlement_release_failed", "Could not release settlement claim", logger.RequestIDFrom(ctx), err, fields)
	}
	s.logger.Error("settlement_deferred", "Order creation failed, awaiting gateway retry", logger.RequestIDFrom(ctx), cause, fields)
}

func receipt(id uuid.UUID) string {
	return "rcpt_" + strings.ReplaceAll(id.String(), "-", "")[:20]
}
