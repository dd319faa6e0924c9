package reconcile

import (
	"strings"

	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/models"
)

// MapStatus translates a gateway status into the ledger vocabulary. Anything
// unrecognised maps to pending so an ambiguous answer can never complete a
// payment.
func MapStatus(external string) models.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case gateway.STATUS_PAID:
		return models.StatusCompleted
	case gateway.STATUS_CANCELLED, gateway.STATUS_EXPIRED:
		return models.StatusFailed
	case gateway.STATUS_PROCESSING:
		return models.StatusProcessing
	case gateway.STATUS_PENDING:
		return models.StatusPending
	}
	return models.StatusPending
}
