package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrStatusConflict means the row's status was no longer the expected one
	// when the conditional update ran; another writer got there first.
	ErrStatusConflict = errors.New("ledger: status changed concurrently")

	ErrAlreadyExists = errors.New("ledger: payment for order code already exists")
)

var openStatuses = []models.PaymentStatus{models.StatusPending, models.StatusProcessing}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecentPending returns pending/processing payments that carry an order code,
// newest first, created at or after since (zero since means no bound).
func (s *Store) RecentPending(ctx context.Context, since time.Time, limit int) ([]models.Payment, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where("order_code IS NOT NULL")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var payments []models.Payment
	if err := q.Order("created_at DESC").Order("id DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("recent pending: %w", err)
	}
	return payments, nil
}

// OrderCodesInWindow lists every locally known order code first seen in
// [from, to]: codes on payment rows regardless of status, and codes handed
// out by the booking flow whose payment row never got written. Newest first,
// without duplicates.
func (s *Store) OrderCodesInWindow(ctx context.Context, from, to time.Time) ([]string, error) {
	type seen struct {
		Code      string
		CreatedAt time.Time
	}
	var rows []seen

	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("order_code AS code, created_at").
		Where("order_code IS NOT NULL").
		Where("created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("payments in window: %w", err)
	}

	var booked []seen
	if err := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Select("payment_order_code AS code, created_at").
		Where("payment_order_code IS NOT NULL").
		Where("created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Scan(&booked).Error; err != nil {
		return nil, fmt.Errorf("appointments in window: %w", err)
	}
	rows = append(rows, booked...)

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	codes := make([]string, 0, len(rows))
	dedup := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.Code == "" {
			continue
		}
		if _, ok := dedup[r.Code]; ok {
			continue
		}
		dedup[r.Code] = struct{}{}
		codes = append(codes, r.Code)
	}
	return codes, nil
}

// FindByOrderCode returns nil without error when no payment carries code.
func (s *Store) FindByOrderCode(ctx context.Context, code string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("order_code = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %s: %w", code, err)
	}
	return &p, nil
}

// StatusChange is one conditional write. Nil optional fields are left alone;
// non-nil ones only fill columns that are still NULL.
type StatusChange struct {
	OrderCode string
	From      models.PaymentStatus
	To        models.PaymentStatus

	PaidAt        *time.Time
	TransactionID *string

	PatientID *uint
	DoctorID  *uint
}

// AdvanceStatus applies change as a single UPDATE guarded by the expected
// current status. ErrStatusConflict is returned when no row matched.
func (s *Store) AdvanceStatus(ctx context.Context, change StatusChange) error {
	updates := map[string]interface{}{
		"status":     change.To,
		"updated_at": time.Now().UTC(),
	}
	if change.PaidAt != nil {
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", *change.PaidAt)
	}
	if change.TransactionID != nil {
		updates["transaction_id"] = gorm.Expr("COALESCE(transaction_id, ?)", *change.TransactionID)
	}
	if change.PatientID != nil {
		updates["patient_id"] = gorm.Expr("COALESCE(patient_id, ?)", *change.PatientID)
	}
	if change.DoctorID != nil {
		updates["doctor_id"] = gorm.Expr("COALESCE(doctor_id, ?)", *change.DoctorID)
	}

	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_code = ? AND status = ?", change.OrderCode, change.From).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("advance %s %s->%s: %w", change.OrderCode, change.From, change.To, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// InsertIfAbsent creates p unless a payment with the same order code exists,
// in which case ErrAlreadyExists is returned and nothing is written.
func (s *Store) InsertIfAbsent(ctx context.Context, p *models.Payment) error {
	if p.OrderCode == nil {
		return errors.New("insert payment: order code required")
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_code"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return fmt.Errorf("insert payment %s: %w", *p.OrderCode, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}
