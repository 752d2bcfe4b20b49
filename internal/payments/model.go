package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusCancelled = "cancelled"
)

// ExpiryWindow is how long a payment intent stays open, and how old a matching
// transaction may be.
const ExpiryWindow = 2 * time.Minute

// Payment is a pending or settled credit purchase.
type Payment struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	SenderAddress   string          `json:"senderAddress"`
	ReceiverAddress string          `json:"receiverAddress"`
	ExpectedAmount  decimal.Decimal `json:"expectedAmount"`
	Credits         int             `json:"credits"`
	Status          string          `json:"status"`
	Signature       string          `json:"signature,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	VerifiedAt      *time.Time      `json:"verifiedAt,omitempty"`
	CreditsGranted  bool            `json:"creditsGranted"`
}

// Expired reports whether now is past the payment's expiry.
func (p Payment) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

var (
	ErrNotFound            = errors.New("payment not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrNotConfigured       = errors.New("payments not configured")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotPending          = errors.New("payment is no longer pending")
)

// BalanceError carries the figures for the insufficient balance remediation message.
type BalanceError struct {
	Have decimal.Decimal
	Need decimal.Decimal
}

func (e *BalanceError) Error() string {
	return "insufficient balance: wallet holds " + e.Have.String() + " SOL, " + e.Need.String() + " SOL required"
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }
