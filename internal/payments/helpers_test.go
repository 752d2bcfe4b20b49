package payments

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FIipFIop/perp-prediction/internal/credits"
	"github.com/FIipFIop/perp-prediction/internal/indexer/helius"
)

const (
	testSender   = "So11111111111111111111111111111111111111112"
	testReceiver = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

var testNow = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

type fakeIndexer struct {
	mu           sync.Mutex
	balance      uint64
	balanceErr   error
	txs          []helius.Transaction
	historyCalls int
}

func (f *fakeIndexer) GetBalance(ctx context.Context, address string) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeIndexer) RecentTransactions(ctx context.Context, address string, limit int) ([]helius.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return f.txs, nil
}

func (f *fakeIndexer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

func transfer(signature string, lamports int64, at time.Time) helius.Transaction {
	return helius.Transaction{
		Signature: signature,
		Timestamp: at.Unix(),
		FeePayer:  testSender,
		NativeTransfers: []helius.NativeTransfer{
			{FromUserAccount: testSender, ToUserAccount: testReceiver, Amount: lamports},
		},
		AccountData: []helius.AccountData{
			{Account: testSender, NativeBalanceChange: -lamports},
			{Account: testReceiver, NativeBalanceChange: lamports},
		},
	}
}

func newTestService(idx *fakeIndexer) (*Service, *credits.Service) {
	creditSvc := credits.NewService(0)
	svc := NewService(nil, nil, idx, creditSvc, testReceiver, decimal.RequireFromString("0.01"))
	svc.now = func() time.Time { return testNow }
	return svc, creditSvc
}
