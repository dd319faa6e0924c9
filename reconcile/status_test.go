package reconcile

import (
	"testing"

	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		external string
		want     models.PaymentStatus
	}{
		{"PAID", models.StatusCompleted},
		{"paid", models.StatusCompleted},
		{" PAID ", models.StatusCompleted},
		{"CANCELLED", models.StatusFailed},
		{"EXPIRED", models.StatusFailed},
		{"PROCESSING", models.StatusProcessing},
		{"PENDING", models.StatusPending},
		{"", models.StatusPending},
		{"UNDERPAID", models.StatusPending},
		{"PAID_PARTIALLY", models.StatusPending},
		{"completed", models.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.external, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.external))
		})
	}
}

func TestMapStatus_UnknownNeverCompletes(t *testing.T) {
	for _, v := range []string{"SUCCESS", "SETTLED", "OK", "PAYED", "null", "00", "Paid!"} {
		got := MapStatus(v)
		assert.Equal(t, models.StatusPending, got, v)
		assert.NotEqual(t, models.StatusCompleted, got, v)
	}
}
