// Package ledgertest opens throwaway SQLite-backed ledgers for tests.
package ledgertest

import (
	"path/filepath"
	"testing"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"git.sr.ht/~aondrejcak/payrecon/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := kernel.OpenDatabase(sqlite.Open(path+"?_busy_timeout=5000"), false)
	if err != nil {
		t.Fatalf("OpenDatabase() failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Str(s string) *string { return &s }

func Uint(v uint) *uint { return &v }

// Payment inserts a gateway payment for code with the given status, created at.
func Payment(t testing.TB, db *gorm.DB, code string, status models.PaymentStatus, amount int64, createdAt time.Time) *models.Payment {
	t.Helper()
	p := &models.Payment{
		OrderCode:     Str(code),
		Amount:        amount,
		Status:        status,
		PaymentMethod: models.PMETHOD_GATEWAY,
	}
	p.CreatedAt = createdAt.UTC()
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create payment %s: %v", code, err)
	}
	return p
}

func Reload(t testing.TB, db *gorm.DB, code string) *models.Payment {
	t.Helper()
	var p models.Payment
	if err := db.Where("order_code = ?", code).First(&p).Error; err != nil {
		t.Fatalf("reload payment %s: %v", code, err)
	}
	return &p
}
