package reconcile

import (
	"context"
	"sync"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/ledger"
	"git.sr.ht/~aondrejcak/payrecon/models"
)

// fakeGateway answers from a fixed table and records when it was called.
type fakeGateway struct {
	mu    sync.Mutex
	txs   map[string]*gateway.Transaction
	errs  map[string]error
	calls []time.Time
	codes []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{txs: map[string]*gateway.Transaction{}, errs: map[string]error{}}
}

func (g *fakeGateway) put(code, status string, amount int64) *gateway.Transaction {
	tx := &gateway.Transaction{ID: "gw-" + code, OrderCode: gateway.OrderCode(code), Amount: amount, Status: status}
	g.txs[code] = tx
	return tx
}

func (g *fakeGateway) FetchTransaction(_ context.Context, code string) (*gateway.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, time.Now())
	g.codes = append(g.codes, code)

	if err, ok := g.errs[code]; ok {
		return nil, err
	}
	tx, ok := g.txs[code]
	if !ok {
		return nil, gateway.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

// racingLedger runs interfere once, right before the first AdvanceStatus.
type racingLedger struct {
	Ledger
	interfere func()
	advances  int
}

func (r *racingLedger) AdvanceStatus(ctx context.Context, change ledger.StatusChange) error {
	r.advances++
	if r.interfere != nil {
		f := r.interfere
		r.interfere = nil
		f()
	}
	return r.Ledger.AdvanceStatus(ctx, change)
}

func ts(s string) *gateway.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &gateway.Time{Time: t}
}

var allStatuses = []models.PaymentStatus{
	models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed,
}

var remoteFor = map[models.PaymentStatus]string{
	models.StatusPending:    gateway.STATUS_PENDING,
	models.StatusProcessing: gateway.STATUS_PROCESSING,
	models.StatusCompleted:  gateway.STATUS_PAID,
	models.StatusFailed:     gateway.STATUS_CANCELLED,
}
