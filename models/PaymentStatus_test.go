package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAdvanceTo(t *testing.T) {
	all := []PaymentStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	allowed := map[[2]PaymentStatus]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCompleted}:    true,
		{StatusPending, StatusFailed}:       true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			got := from.CanAdvanceTo(to)
			assert.Equal(t, allowed[[2]PaymentStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestCanAdvanceTo_UnknownStatus(t *testing.T) {
	assert.False(t, PaymentStatus("refunded").CanAdvanceTo(StatusCompleted))
	assert.False(t, StatusPending.CanAdvanceTo("refunded"))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
}

func TestPaymentCode(t *testing.T) {
	var nilPayment *Payment
	assert.Equal(t, "", nilPayment.Code())
	assert.Equal(t, "", (&Payment{}).Code())

	code := "O-1"
	assert.Equal(t, "O-1", (&Payment{OrderCode: &code}).Code())
}
