package models

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
)

// rank orders statuses; completed and failed share the terminal rank.
func (s PaymentStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

func (s PaymentStatus) Valid() bool {
	return s.rank() >= 0
}

func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether moving from s to next is a forward step:
// pending -> processing|completed|failed, processing -> completed|failed.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}
