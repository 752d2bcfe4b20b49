package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
)

// Matches reports whether tx settles a payment of expectedLamports from sender to
// receiver: recent enough, touching both wallets, and carrying a native transfer
// between them within tolerance.
func Matches(tx helius.Transaction, sender, receiver string, expectedLamports decimal.Decimal, now time.Time) bool {
	if tx.Signature == "" || tx.Failed() {
		return false
	}
	if now.Sub(tx.Time()) > ExpiryWindow {
		return false
	}
	participants := tx.Participants()
	if _, ok := participants[sender]; !ok {
		return false
	}
	if _, ok := participants[receiver]; !ok {
		return false
	}
	for _, nt := range tx.NativeTransfers {
		if nt.FromUserAccount != sender || nt.ToUserAccount != receiver {
			continue
		}
		if WithinTolerance(decimal.NewFromInt(nt.Amount), expectedLamports) {
			return true
		}
	}
	return false
}

// FirstMatch returns the first transaction in order that matches and is not skipped.
func FirstMatch(txs []helius.Transaction, sender, receiver string, expectedLamports decimal.Decimal, now time.Time, skip func(signature string) bool) (helius.Transaction, bool) {
	for _, tx := range txs {
		if !Matches(tx, sender, receiver, expectedLamports, now) {
			continue
		}
		if skip != nil && skip(tx.Signature) {
			continue
		}
		return tx, true
	}
	return helius.Transaction{}, false
}
