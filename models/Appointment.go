package models

import (
	"time"

	"gorm.io/gorm"
)

type Appointment struct {
	gorm.Model

	PatientID *uint `gorm:"index"`
	DoctorID  *uint `gorm:"index"`

	ScheduledAt time.Time

	// order code handed to the gateway when the booking flow opened a checkout
	PaymentOrderCode *string `gorm:"index;size:64"`
}
