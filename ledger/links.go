package ledger

import (
	"context"
	"errors"
	"fmt"

	"git.sr.ht/~aondrejcak/payrecon/models"
	"gorm.io/gorm"
)

// ErrLinkNotFound is a lookup miss on a backfill source row.
var ErrLinkNotFound = errors.New("ledger: linked record not found")

// Links are the patient/doctor ids a secondary record can supply. Either may be nil.
type Links struct {
	PatientID *uint
	DoctorID  *uint
}

func (s *Store) MedicalRecordLinks(ctx context.Context, id uint) (Links, error) {
	var rec models.MedicalRecord
	if err := s.db.WithContext(ctx).Select("id", "patient_id", "doctor_id").First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Links{}, ErrLinkNotFound
		}
		return Links{}, fmt.Errorf("medical record %d: %w", id, err)
	}
	return Links{PatientID: rec.PatientID, DoctorID: rec.DoctorID}, nil
}

func (s *Store) AppointmentLinks(ctx context.Context, id uint) (Links, error) {
	var appt models.Appointment
	if err := s.db.WithContext(ctx).Select("id", "patient_id", "doctor_id").First(&appt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Links{}, ErrLinkNotFound
		}
		return Links{}, fmt.Errorf("appointment %d: %w", id, err)
	}
	return Links{PatientID: appt.PatientID, DoctorID: appt.DoctorID}, nil
}
