package reconcile

import (
	"context"
	"errors"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/ledger"
	"git.sr.ht/~aondrejcak/payrecon/models"
)

// Ledger is the local payment store the reconciler reads seeds from and
// writes repairs to.
type Ledger interface {
	RecentPending(ctx context.Context, since time.Time, limit int) ([]models.Payment, error)
	OrderCodesInWindow(ctx context.Context, from, to time.Time) ([]string, error)
	FindByOrderCode(ctx context.Context, code string) (*models.Payment, error)
	AdvanceStatus(ctx context.Context, change ledger.StatusChange) error
	InsertIfAbsent(ctx context.Context, p *models.Payment) error
}

type Outcome int

const (
	OutcomeNoOp Outcome = iota
	OutcomeUpdated
	OutcomeRecovered
	// OutcomeSuppressed: the gateway implies a backward transition.
	OutcomeSuppressed
	// OutcomeConflict: a concurrent writer kept changing the row.
	OutcomeConflict
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeRecovered:
		return "recovered"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailed:
		return "failed"
	}
	return "noop"
}

// Writer applies repairs. Every write is conditional on the status it was
// computed from, so overlapping runs converge instead of double-applying.
type Writer struct {
	ledger   Ledger
	resolver *Resolver
}

func NewWriter(l Ledger, resolver *Resolver) *Writer {
	return &Writer{ledger: l, resolver: resolver}
}

// ApplyStatusUpdate moves local forward to the gateway's status. Settlement
// metadata is attached only on the way into completed; missing links are
// backfilled in the same write.
func (w *Writer) ApplyStatusUpdate(ctx context.Context, local *models.Payment, remote *gateway.Transaction) (Outcome, error) {
	return w.applyStatusUpdate(ctx, local, remote, true)
}

func (w *Writer) applyStatusUpdate(ctx context.Context, local *models.Payment, remote *gateway.Transaction, retry bool) (Outcome, error) {
	target := MapStatus(remote.Status)
	if target == local.Status {
		return OutcomeNoOp, nil
	}
	if !local.Status.CanAdvanceTo(target) {
		return OutcomeSuppressed, nil
	}

	change := ledger.StatusChange{
		OrderCode: local.Code(),
		From:      local.Status,
		To:        target,
	}
	if target == models.StatusCompleted {
		change.PaidAt = remote.SettledAt()
		if ref := remote.SettlementReference(); ref != "" {
			change.TransactionID = &ref
		}
	}
	links := w.resolver.Resolve(ctx, local)
	change.PatientID = links.PatientID
	change.DoctorID = links.DoctorID

	err := w.ledger.AdvanceStatus(ctx, change)
	if err == nil {
		return OutcomeUpdated, nil
	}
	if !errors.Is(err, ledger.ErrStatusConflict) {
		return OutcomeFailed, &StoreError{Op: "advance status", OrderCode: change.OrderCode, Err: err}
	}
	if !retry {
		return OutcomeConflict, nil
	}

	// someone else moved the row; decide again against what is stored now
	fresh, err := w.ledger.FindByOrderCode(ctx, change.OrderCode)
	if err != nil {
		return OutcomeFailed, &StoreError{Op: "reload", OrderCode: change.OrderCode, Err: err}
	}
	if fresh == nil {
		return OutcomeConflict, nil
	}
	return w.applyStatusUpdate(ctx, fresh, remote, false)
}

// CreateFromRemote writes a ledger row for a gateway transaction nobody
// recorded locally. The row carries no patient/doctor links and is flagged
// as system-recovered. If a row appeared in the meantime it is treated as a
// status update instead.
func (w *Writer) CreateFromRemote(ctx context.Context, remote *gateway.Transaction) (Outcome, error) {
	code := string(remote.OrderCode)
	status := MapStatus(remote.Status)

	p := &models.Payment{
		OrderCode:       &code,
		Amount:          remote.Amount,
		Status:          status,
		PaymentMethod:   models.PMETHOD_GATEWAY,
		SystemRecovered: true,
	}
	if status == models.StatusCompleted {
		p.PaidAt = remote.SettledAt()
		if ref := remote.SettlementReference(); ref != "" {
			p.TransactionID = &ref
		}
	}

	err := w.ledger.InsertIfAbsent(ctx, p)
	if err == nil {
		return OutcomeRecovered, nil
	}
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		return OutcomeFailed, &StoreError{Op: "insert", OrderCode: code, Err: err}
	}

	existing, err := w.ledger.FindByOrderCode(ctx, code)
	if err != nil {
		return OutcomeFailed, &StoreError{Op: "reload", OrderCode: code, Err: err}
	}
	if existing == nil {
		return OutcomeConflict, nil
	}
	return w.applyStatusUpdate(ctx, existing, remote, false)
}
