package interfaces

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Verdict is the tri-state outcome of an availability probe.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictAvailable
	VerdictTaken
)

func (v Verdict) String() string {
	switch v {
	case VerdictAvailable:
		return "available"
	case VerdictTaken:
		return "taken"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown", "":
		*v = VerdictUnknown
	case "available":
		*v = VerdictAvailable
	case "taken":
		*v = VerdictTaken
	default:
		return fmt.Errorf("invalid verdict %q", string(text))
	}
	return nil
}

// DomainQuery is a snapshot of the candidate name and its availability.
// Token increases with every issued probe; only the probe holding the latest
// token may change Verdict.
type DomainQuery struct {
	Name     string  `json:"name"`
	Verdict  Verdict `json:"verdict"`
	Checking bool    `json:"checking"`
	Token    uint64  `json:"token"`
}

// EncryptedClaim is a ciphertext handle and its validity proof, both in
// canonical byte form. Proof may be empty.
type EncryptedClaim struct {
	Ciphertext hexutil.Bytes `json:"ciphertext"`
	Proof      hexutil.Bytes `json:"proof"`
}

// Status of a registration attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether records in this status are frozen.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PendingReference is the placeholder transaction reference of a record
// whose transaction has not been accepted yet.
const PendingReference = "pending"

// RegistrationRecord is one ledger entry per submission attempt.
type RegistrationRecord struct {
	ID        uuid.UUID        `json:"id"`
	Reference string           `json:"reference"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	Status    Status           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Fee       *decimal.Decimal `json:"fee,omitempty"`
}

// NewPendingRecord creates a pending record for name with the placeholder reference.
func NewPendingRecord(name string, now time.Time) RegistrationRecord {
	return RegistrationRecord{
		ID:        uuid.New(),
		Reference: PendingReference,
		Name:      name,
		CreatedAt: now,
		Status:    StatusPending,
	}
}

// RecordPatch is a partial update of a RegistrationRecord. Nil fields are left untouched.
type RecordPatch struct {
	Reference *string
	Status    *Status
	Error     *string
	Fee       *decimal.Decimal
}

// Apply returns a copy of r with the patch applied.
func (p RecordPatch) Apply(r RegistrationRecord) RegistrationRecord {
	if p.Reference != nil {
		r.Reference = *p.Reference
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	if p.Fee != nil {
		fee := *p.Fee
		r.Fee = &fee
	}
	return r
}

// WithReference is a convenience patch replacing the transaction reference.
func WithReference(ref string) RecordPatch {
	return RecordPatch{Reference: &ref}
}

// Succeeded marks a record successful with an optional fee.
func Succeeded(fee *decimal.Decimal) RecordPatch {
	status := StatusSuccess
	return RecordPatch{Status: &status, Fee: fee}
}

// Failed marks a record failed with the surfaced error message.
func Failed(err error) RecordPatch {
	status := StatusFailed
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return RecordPatch{Status: &status, Error: &msg}
}
