package reconcile

import (
	"git.sr.ht/~aondrejcak/payrecon/gateway"
	"git.sr.ht/~aondrejcak/payrecon/models"
)

type DivergenceKind int

const (
	DivergenceNone DivergenceKind = iota
	MissingLocal
	StatusMismatch
)

func (k DivergenceKind) String() string {
	switch k {
	case MissingLocal:
		return "missing_local"
	case StatusMismatch:
		return "status_mismatch"
	}
	return "none"
}

// Divergence lives for one run only.
type Divergence struct {
	Kind   DivergenceKind
	Local  *models.Payment
	Remote *gateway.Transaction
}

// Classify compares one ledger snapshot (nil when absent) with one gateway
// snapshot.
func Classify(local *models.Payment, remote *gateway.Transaction) DivergenceKind {
	switch {
	case remote == nil:
		return DivergenceNone
	case local == nil:
		return MissingLocal
	case MapStatus(remote.Status) != local.Status:
		return StatusMismatch
	}
	return DivergenceNone
}

// Detect returns nil when the pair agrees.
func Detect(local *models.Payment, remote *gateway.Transaction) *Divergence {
	kind := Classify(local, remote)
	if kind == DivergenceNone {
		return nil
	}
	return &Divergence{Kind: kind, Local: local, Remote: remote}
}
