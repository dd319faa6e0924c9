package reconcile

import (
	"context"
	"errors"

	"git.sr.ht/~aondrejcak/payrecon/ledger"
	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/rs/zerolog/log"
)

// LinkSource resolves patient/doctor ids from records a payment references.
type LinkSource interface {
	MedicalRecordLinks(ctx context.Context, id uint) (ledger.Links, error)
	AppointmentLinks(ctx context.Context, id uint) (ledger.Links, error)
}

// Resolver fills missing patient/doctor links on a payment from the records
// it references. The clinical record is consulted before the appointment;
// a field already set on the payment is never looked up.
type Resolver struct {
	links LinkSource
}

func NewResolver(links LinkSource) *Resolver {
	return &Resolver{links: links}
}

type linkLookup struct {
	name string
	id   *uint
	get  func(ctx context.Context, id uint) (ledger.Links, error)
}

// Resolve returns only the fields that were nil on p and could be found.
// Lookup misses and store errors leave the field nil.
func (r *Resolver) Resolve(ctx context.Context, p *models.Payment) ledger.Links {
	var out ledger.Links
	if r == nil || r.links == nil || p == nil {
		return out
	}

	needPatient := p.PatientID == nil
	needDoctor := p.DoctorID == nil

	lookups := []linkLookup{
		{name: "medical_record", id: p.MedicalRecordID, get: r.links.MedicalRecordLinks},
		{name: "appointment", id: p.AppointmentID, get: r.links.AppointmentLinks},
	}

	for _, l := range lookups {
		if !needPatient && !needDoctor {
			break
		}
		if l.id == nil {
			continue
		}

		found, err := l.get(ctx, *l.id)
		if err != nil {
			ev := log.Warn()
			if errors.Is(err, ledger.ErrLinkNotFound) {
				ev = log.Debug()
			}
			ev.Err(err).Str("order_code", p.Code()).Str("source", l.name).Uint("source_id", *l.id).Msg("backfill lookup skipped")
			continue
		}

		if needPatient && found.PatientID != nil {
			out.PatientID = found.PatientID
			needPatient = false
		}
		if needDoctor && found.DoctorID != nil {
			out.DoctorID = found.DoctorID
			needDoctor = false
		}
	}

	return out
}
