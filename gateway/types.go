package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

//goland:noinspection ALL
const (
	STATUS_PENDING    = "PENDING"
	STATUS_PROCESSING = "PROCESSING"
	STATUS_PAID       = "PAID"
	STATUS_CANCELLED  = "CANCELLED"
	STATUS_EXPIRED    = "EXPIRED"
)

const (
	codeSuccess  = "00"
	codeNotFound = "101"
)

type envelope struct {
	Code string       `json:"code"`
	Desc string       `json:"desc"`
	Data *Transaction `json:"data"`
}

// Transaction is a read-only snapshot of one gateway payment request.
type Transaction struct {
	ID           string       `json:"id"`
	OrderCode    OrderCode    `json:"orderCode"`
	Amount       int64        `json:"amount"`
	Status       string       `json:"status"`
	CreatedAt    *Time        `json:"createdAt"`
	PaidAt       *Time        `json:"paidAt"`
	Transactions []Settlement `json:"transactions"`
}

type Settlement struct {
	Reference            string `json:"reference"`
	Amount               int64  `json:"amount"`
	Description          string `json:"description"`
	TransactionDateTime  *Time  `json:"transactionDateTime"`
	CounterAccountName   string `json:"counterAccountName"`
	CounterAccountNumber string `json:"counterAccountNumber"`
}

// SettledAt is paidAt, else the time of the first settlement entry.
func (t *Transaction) SettledAt() *time.Time {
	if t.PaidAt != nil && !t.PaidAt.IsZero() {
		v := t.PaidAt.UTC()
		return &v
	}
	for _, s := range t.Transactions {
		if s.TransactionDateTime != nil && !s.TransactionDateTime.IsZero() {
			v := s.TransactionDateTime.UTC()
			return &v
		}
	}
	return nil
}

// SettlementReference is the first settlement reference, else the gateway id.
func (t *Transaction) SettlementReference() string {
	for _, s := range t.Transactions {
		if s.Reference != "" {
			return s.Reference
		}
	}
	return t.ID
}

// OrderCode accepts both JSON strings and numbers; the gateway emits numeric
// codes for some merchants.
type OrderCode string

func (o *OrderCode) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*o = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = OrderCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order code: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("order code %s is not an integer", n)
	}
	*o = OrderCode(n.String())
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Time parses the timestamp layouts the gateway uses. Zone-less values are
// taken as UTC.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}
