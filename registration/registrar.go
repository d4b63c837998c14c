package registration

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/metrics"
)

// ClaimBuilder encrypts a plaintext owner for a contract and submitter.
type ClaimBuilder interface {
	BuildClaim(ctx context.Context, plaintext, contract, submitter common.Address) (interfaces.EncryptedClaim, error)
}

// Registrar runs a complete registration: guards, encryption, submission
// and confirmation, as one attempt.
type Registrar struct {
	*Submitter
	builder ClaimBuilder
}

func NewRegistrar(submitter *Submitter, builder ClaimBuilder) *Registrar {
	return &Registrar{Submitter: submitter, builder: builder}
}

// Register encrypts the session account as owner of name and registers it.
// The returned record is terminal whenever an attempt was recorded; guard
// failures return before anything is recorded.
func (r *Registrar) Register(ctx context.Context, name string) (interfaces.RegistrationRecord, error) {
	session, name, err := r.begin(ctx, name)
	if err != nil {
		return interfaces.RegistrationRecord{}, err
	}
	defer r.end()

	a := r.open(name)

	claim, err := r.builder.BuildClaim(ctx, session.Account, session.Registry.Address(), session.Account)
	if err != nil {
		r.metrics.IncCounter(metrics.EventEncryption, metrics.Outcome("failed"))
		return r.abort(a, err)
	}
	r.metrics.IncCounter(metrics.EventEncryption, metrics.Outcome("success"))

	return r.send(ctx, session, a, claim)
}
