package credits

import (
	"errors"
	"time"
)

// Balance is a user's remaining analysis credits.
type Balance struct {
	UserID    string    `json:"userId"`
	Credits   int       `json:"credits"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	// ErrInsufficientCredits indicates the balance cannot cover the request.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount rejects non-positive grants or debits.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
