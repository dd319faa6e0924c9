package reconcile

import "fmt"

// StoreError is a ledger read or write failure.
type StoreError struct {
	Op        string
	OrderCode string
	Err       error
}

func (e *StoreError) Error() string {
	if e.OrderCode != "" {
		return fmt.Sprintf("ledger %s %s: %v", e.Op, e.OrderCode, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
