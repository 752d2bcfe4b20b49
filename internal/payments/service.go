package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
	"github.com/FIipFIop/perp-prediction/internal/shared/metrics"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// Indexer is the subset of the blockchain indexer the payment flow needs.
type Indexer interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	RecentTransactions(ctx context.Context, address string, limit int) ([]helius.Transaction, error)
}

// Service opens payment intents and settles them against on-chain transfers.
type Service struct {
	Repo          Repo
	Ledger        SignatureLedger
	Indexer       Indexer
	Credits       *credits.Service
	Receiver      string
	CostPerCredit decimal.Decimal

	now func() time.Time
}

// NewService constructs a Service. repo and ledger default to memory implementations.
func NewService(repo Repo, ledger SignatureLedger, indexer Indexer, creditSvc *credits.Service, receiver string, costPerCredit decimal.Decimal) *Service {
	if repo == nil {
		repo = NewMemoryRepo()
	}
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Service{
		Repo:          repo,
		Ledger:        ledger,
		Indexer:       indexer,
		Credits:       creditSvc,
		Receiver:      strings.TrimSpace(receiver),
		CostPerCredit: costPerCredit,
		now:           time.Now,
	}
}

// Configured reports whether a receiver wallet, a price and an indexer are wired.
func (s *Service) Configured() bool {
	return s != nil && s.Indexer != nil && s.Receiver != "" && s.CostPerCredit.IsPositive()
}

// Quote returns the SOL amount for n credits.
func (s *Service) Quote(n int) decimal.Decimal {
	return s.CostPerCredit.Mul(decimal.NewFromInt(int64(n)))
}

// InitRequest opens a payment for credits paid from SenderAddress.
type InitRequest struct {
	UserID        string `validate:"required"`
	SenderAddress string `validate:"required"`
	Credits       int    `validate:"min=1,max=1000"`
}

var requestRules = validator.New()

// Init validates the request, checks the sender can cover the amount and stores a pending payment.
func (s *Service) Init(ctx context.Context, req InitRequest) (Payment, error) {
	if !s.Configured() {
		return Payment{}, ErrNotConfigured
	}
	req.SenderAddress = strings.TrimSpace(req.SenderAddress)
	if err := requestRules.Struct(req); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	sender := req.SenderAddress
	if !ValidAddress(sender) {
		return Payment{}, ErrInvalidAddress
	}
	if sender == s.Receiver {
		return Payment{}, fmt.Errorf("%w: sender matches receiver", ErrInvalidInput)
	}

	amount := s.Quote(req.Credits)
	lamports, err := s.Indexer.GetBalance(ctx, sender)
	if err != nil {
		return Payment{}, fmt.Errorf("sender balance: %w", err)
	}
	have := LamportsToSOL(int64(lamports))
	if have.LessThan(amount) {
		return Payment{}, &BalanceError{Have: have, Need: amount}
	}

	now := s.now().UTC()
	p := Payment{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		SenderAddress:   sender,
		ReceiverAddress: s.Receiver,
		ExpectedAmount:  amount,
		Credits:         req.Credits,
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ExpiryWindow),
	}
	if err := s.Repo.Create(ctx, p); err != nil {
		return Payment{}, err
	}
	metrics.PaymentsInitiated.Inc()
	telemetry.Info("payment.initiated", map[string]any{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"credits":    p.Credits,
		"amount_sol": p.ExpectedAmount.String(),
	})
	return p, nil
}

// Verify settles a pending payment owned by userID. Expired payments are cancelled
// without consulting the indexer. A verified payment whose credits never landed is
// granted again here, so a failed grant is repaired by the next call.
func (s *Service) Verify(ctx context.Context, userID, paymentID string) (Payment, error) {
	p, err := s.Repo.GetByID(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != userID {
		return Payment{}, ErrNotFound
	}
	if p.Status == StatusVerified && !p.CreditsGranted {
		return s.grant(ctx, p)
	}
	if p.Status != StatusPending {
		return p, nil
	}

	now := s.now().UTC()
	if p.Expired(now) {
		return s.cancel(ctx, p)
	}
	if !s.Configured() {
		return Payment{}, ErrNotConfigured
	}

	txs, err := s.Indexer.RecentTransactions(ctx, p.ReceiverAddress, helius.DefaultHistoryLimit)
	if err != nil {
		return Payment{}, fmt.Errorf("receiver history: %w", err)
	}

	var claimErr error
	skip := func(signature string) bool {
		ok, err := s.Ledger.Claim(ctx, signature, p.ID)
		if err != nil {
			claimErr = err
			return true
		}
		return !ok
	}
	tx, ok := FirstMatch(txs, p.SenderAddress, p.ReceiverAddress, SOLToLamports(p.ExpectedAmount), now, skip)
	if !ok {
		if claimErr != nil {
			return Payment{}, fmt.Errorf("claim signature: %w", claimErr)
		}
		return p, nil
	}

	if err := s.Repo.MarkVerified(ctx, p.ID, tx.Signature, now); err != nil {
		if !errors.Is(err, ErrNotPending) {
			return Payment{}, err
		}
		current, err := s.Repo.GetByID(ctx, p.ID)
		if err != nil {
			return Payment{}, err
		}
		if current.Status == StatusVerified && !current.CreditsGranted {
			return s.grant(ctx, current)
		}
		return current, nil
	}
	metrics.PaymentsVerified.Inc()
	telemetry.Info("payment.verified", map[string]any{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"signature":  tx.Signature,
		"credits":    p.Credits,
	})

	p.Status = StatusVerified
	p.Signature = tx.Signature
	p.VerifiedAt = &now
	return s.grant(ctx, p)
}

// grant credits a verified payment and records the grant.
func (s *Service) grant(ctx context.Context, p Payment) (Payment, error) {
	if s.Credits != nil {
		if _, err := s.Credits.Grant(ctx, p.UserID, p.Credits); err != nil {
			telemetry.Error("payment.grant.failed", map[string]any{
				"payment_id": p.ID,
				"user_id":    p.UserID,
				"error":      err.Error(),
			})
			return Payment{}, fmt.Errorf("grant credits: %w", err)
		}
	}
	if err := s.Repo.MarkGranted(ctx, p.ID); err != nil {
		telemetry.Error("payment.grant.record_failed", map[string]any{
			"payment_id": p.ID,
			"user_id":    p.UserID,
			"error":      err.Error(),
		})
		return Payment{}, fmt.Errorf("record grant: %w", err)
	}
	telemetry.Info("payment.credits_granted", map[string]any{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"credits":    p.Credits,
	})
	p.CreditsGranted = true
	return p, nil
}

func (s *Service) cancel(ctx context.Context, p Payment) (Payment, error) {
	if err := s.Repo.MarkCancelled(ctx, p.ID); err != nil {
		if errors.Is(err, ErrNotPending) {
			return s.Repo.GetByID(ctx, p.ID)
		}
		return Payment{}, err
	}
	metrics.PaymentsCancelled.Inc()
	telemetry.Info("payment.cancelled", map[string]any{"payment_id": p.ID, "user_id": p.UserID})
	p.Status = StatusCancelled
	return p, nil
}

// List returns the user's payments, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Payment, error) {
	return s.Repo.ListByUser(ctx, userID, limit)
}
