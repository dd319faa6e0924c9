package gateway

import (
	"errors"
	"fmt"
)

var ErrTransactionNotFound = errors.New("gateway: transaction not found")

type UnavailableKind string

const (
	KindTransport UnavailableKind = "transport"
	KindStatus    UnavailableKind = "status"
	KindLogical   UnavailableKind = "logical"
	KindDecode    UnavailableKind = "decode"
)

// UnavailableError means the gateway could not answer for one order code.
// It is never fatal for a run.
type UnavailableError struct {
	Kind       UnavailableKind
	OrderCode  string
	StatusCode int    // set for KindStatus
	Code       string // vendor code, set for KindLogical
	Err        error
}

func (e *UnavailableError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("gateway unavailable for %s: http %d", e.OrderCode, e.StatusCode)
	case KindLogical:
		return fmt.Sprintf("gateway error for %s: code %s: %v", e.OrderCode, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway unavailable for %s (%s): %v", e.OrderCode, e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsLogical reports a vendor error code carried inside a 2xx envelope.
func IsLogical(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Kind == KindLogical
}
