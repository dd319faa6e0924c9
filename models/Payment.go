package models

import (
	"time"

	"gorm.io/gorm"
)

//goland:noinspection ALL
const (
	PMETHOD_GATEWAY = "gateway"
	PMETHOD_CASH    = "cash"
)

type Payment struct {
	gorm.Model

	// nil for payments that never went through the gateway (cash desk)
	OrderCode *string `gorm:"uniqueIndex;size:64"`

	Amount        int64
	Status        PaymentStatus `gorm:"size:16;index;not null;default:pending"`
	PaymentMethod string        `gorm:"size:32"`

	PatientID       *uint `gorm:"index"`
	DoctorID        *uint `gorm:"index"`
	AppointmentID   *uint
	MedicalRecordID *uint

	TransactionID *string `gorm:"size:128"`
	PaidAt        *time.Time

	// set when the row was synthesized from a gateway transaction; patient and
	// doctor need a manual confirmation before the record is trusted
	SystemRecovered bool `gorm:"index;not null;default:false"`
}

func (p *Payment) Code() string {
	if p == nil || p.OrderCode == nil {
		return ""
	}
	return *p.OrderCode
}
