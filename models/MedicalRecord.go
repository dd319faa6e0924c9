package models

import "gorm.io/gorm"

// MedicalRecord is the clinical record a consultation payment may point at.
// Only the linkage columns are mapped here.
type MedicalRecord struct {
	gorm.Model

	PatientID *uint `gorm:"index"`
	DoctorID  *uint `gorm:"index"`
}
