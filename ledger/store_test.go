package ledger

import (
	"context"
	"testing"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/ledger/ledgertest"
	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRecentPending(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	ctx := context.Background()

	ledgertest.Payment(t, db, "O-1", models.StatusPending, 100, base.Add(-3*time.Hour))
	ledgertest.Payment(t, db, "O-2", models.StatusProcessing, 100, base.Add(-2*time.Hour))
	ledgertest.Payment(t, db, "O-3", models.StatusCompleted, 100, base.Add(-1*time.Hour))
	ledgertest.Payment(t, db, "O-4", models.StatusPending, 100, base.Add(-30*time.Minute))
	ledgertest.Payment(t, db, "O-old", models.StatusPending, 100, base.Add(-72*time.Hour))

	cash := &models.Payment{Amount: 50, Status: models.StatusPending, PaymentMethod: models.PMETHOD_CASH}
	cash.CreatedAt = base.Add(-10 * time.Minute)
	require.NoError(t, db.Create(cash).Error)

	got, err := s.RecentPending(ctx, base.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-4", "O-2", "O-1"}, codes(got))

	got, err = s.RecentPending(ctx, base.Add(-24*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-4", "O-2"}, codes(got))

	got, err = s.RecentPending(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-4", "O-2", "O-1", "O-old"}, codes(got))
}

func TestOrderCodesInWindow(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)

	ledgertest.Payment(t, db, "O-1", models.StatusCompleted, 100, base.Add(-3*time.Hour))
	ledgertest.Payment(t, db, "O-2", models.StatusPending, 100, base.Add(-1*time.Hour))
	ledgertest.Payment(t, db, "O-out", models.StatusPending, 100, base.Add(-48*time.Hour))

	orphan := &models.Appointment{PatientID: ledgertest.Uint(1), DoctorID: ledgertest.Uint(2), PaymentOrderCode: ledgertest.Str("O-200")}
	orphan.CreatedAt = base.Add(-2 * time.Hour)
	require.NoError(t, db.Create(orphan).Error)

	// same code as an existing payment; must not be listed twice
	dup := &models.Appointment{PaymentOrderCode: ledgertest.Str("O-1")}
	dup.CreatedAt = base.Add(-4 * time.Hour)
	require.NoError(t, db.Create(dup).Error)

	require.NoError(t, db.Create(&models.Appointment{}).Error)

	got, err := s.OrderCodesInWindow(context.Background(), base.Add(-24*time.Hour), base)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-2", "O-200", "O-1"}, got)
}

func TestFindByOrderCode(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	ledgertest.Payment(t, db, "O-1", models.StatusPending, 100, base)

	p, err := s.FindByOrderCode(context.Background(), "O-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(100), p.Amount)

	p, err = s.FindByOrderCode(context.Background(), "O-missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestAdvanceStatus_CompareAndSet(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	ctx := context.Background()
	ledgertest.Payment(t, db, "O-1", models.StatusPending, 100, base)

	paidAt := base.Add(time.Hour)
	err := s.AdvanceStatus(ctx, StatusChange{
		OrderCode:     "O-1",
		From:          models.StatusPending,
		To:            models.StatusCompleted,
		PaidAt:        &paidAt,
		TransactionID: ledgertest.Str("FT1"),
		PatientID:     ledgertest.Uint(7),
	})
	require.NoError(t, err)

	p := ledgertest.Reload(t, db, "O-1")
	assert.Equal(t, models.StatusCompleted, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.True(t, paidAt.Equal(*p.PaidAt))
	assert.Equal(t, "FT1", *p.TransactionID)
	assert.Equal(t, uint(7), *p.PatientID)
	assert.Nil(t, p.DoctorID)

	// a second writer still expecting pending loses
	err = s.AdvanceStatus(ctx, StatusChange{OrderCode: "O-1", From: models.StatusPending, To: models.StatusFailed})
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.Equal(t, models.StatusCompleted, ledgertest.Reload(t, db, "O-1").Status)
}

func TestAdvanceStatus_NeverOverwritesLinks(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	p := ledgertest.Payment(t, db, "O-1", models.StatusPending, 100, base)
	require.NoError(t, db.Model(p).Updates(map[string]interface{}{"patient_id": 3, "transaction_id": "FT-orig"}).Error)

	err := s.AdvanceStatus(context.Background(), StatusChange{
		OrderCode:     "O-1",
		From:          models.StatusPending,
		To:            models.StatusProcessing,
		PatientID:     ledgertest.Uint(99),
		DoctorID:      ledgertest.Uint(5),
		TransactionID: ledgertest.Str("FT-new"),
	})
	require.NoError(t, err)

	got := ledgertest.Reload(t, db, "O-1")
	assert.Equal(t, uint(3), *got.PatientID)
	assert.Equal(t, uint(5), *got.DoctorID)
	assert.Equal(t, "FT-orig", *got.TransactionID)
}

func TestInsertIfAbsent(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	ctx := context.Background()

	p := &models.Payment{OrderCode: ledgertest.Str("O-200"), Amount: 5, Status: models.StatusFailed, SystemRecovered: true}
	require.NoError(t, s.InsertIfAbsent(ctx, p))
	assert.NotZero(t, p.ID)

	again := &models.Payment{OrderCode: ledgertest.Str("O-200"), Amount: 5, Status: models.StatusCompleted}
	assert.ErrorIs(t, s.InsertIfAbsent(ctx, again), ErrAlreadyExists)
	assert.Equal(t, models.StatusFailed, ledgertest.Reload(t, db, "O-200").Status)

	assert.Error(t, s.InsertIfAbsent(ctx, &models.Payment{}))
}

func TestLinks(t *testing.T) {
	db := ledgertest.OpenDB(t)
	s := NewStore(db)
	ctx := context.Background()

	rec := &models.MedicalRecord{PatientID: ledgertest.Uint(1), DoctorID: ledgertest.Uint(2)}
	require.NoError(t, db.Create(rec).Error)
	appt := &models.Appointment{PatientID: ledgertest.Uint(3)}
	require.NoError(t, db.Create(appt).Error)

	links, err := s.MedicalRecordLinks(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), *links.PatientID)
	assert.Equal(t, uint(2), *links.DoctorID)

	links, err = s.AppointmentLinks(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), *links.PatientID)
	assert.Nil(t, links.DoctorID)

	_, err = s.MedicalRecordLinks(ctx, 999)
	assert.ErrorIs(t, err, ErrLinkNotFound)
	_, err = s.AppointmentLinks(ctx, 999)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func codes(ps []models.Payment) []string {
	out := make([]string, 0, len(ps))
	for i := range ps {
		out = append(out, ps[i].Code())
	}
	return out
}
