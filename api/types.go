package api

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// SessionResponse describes the wallet session.
type SessionResponse struct {
	Connected   bool            `json:"connected"`
	Account     *common.Address `json:"account,omitempty"`
	ChainID     uint64          `json:"chain_id,omitempty"`
	ConnectedAt *time.Time      `json:"connected_at,omitempty"`
	Registry    *common.Address `json:"registry,omitempty"`
}

// NewSessionResponse converts session, which may be nil.
func NewSessionResponse(session *interfaces.Session) SessionResponse {
	if session == nil {
		return SessionResponse{}
	}
	resp := SessionResponse{
		Connected:   true,
		Account:     &session.Account,
		ChainID:     session.ChainID,
		ConnectedAt: &session.ConnectedAt,
	}
	if session.Registry != nil {
		addr := session.Registry.Address()
		resp.Registry = &addr
	}
	return resp
}

// DomainRequest sets the candidate name.
type DomainRequest struct {
	Name string `json:"name" validate:"max=255"`
}

// DomainResponse is the candidate name, its verdict and whether a
// registration of it would currently be accepted.
type DomainResponse struct {
	interfaces.DomainQuery
	CanSubmit bool `json:"can_submit"`
}

// RegisterRequest starts a registration of Name.
type RegisterRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// RegisterResponse carries the ledger record of an attempt. Record is nil
// when the attempt was refused before anything was recorded.
type RegisterResponse struct {
	Record *interfaces.RegistrationRecord `json:"record,omitempty"`
	Error  *ErrorResponse                 `json:"error,omitempty"`
}

// LedgerResponse lists all registration attempts, newest first.
type LedgerResponse struct {
	Records []interfaces.RegistrationRecord `json:"records"`
	Pending int                             `json:"pending"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds reported in ErrorResponse.Kind.
const (
	KindProviderMissing     = "provider_missing"
	KindAuthorizationDenied = "authorization_denied"
	KindProviderError       = "provider_error"
	KindUnsupportedNetwork  = "unsupported_network"
	KindEncryption          = "encryption_failed"
	KindTransactionRejected = "transaction_rejected"
	KindTransactionReverted = "transaction_reverted"
	KindNoSession           = "no_session"
	KindEmptyName           = "empty_name"
	KindDomainTaken         = "domain_taken"
	KindInFlight            = "in_flight"
	KindInvalidRequest      = "invalid_request"
	KindInternal            = "internal"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{interfaces.ErrProviderMissing, KindProviderMissing},
	{interfaces.ErrAuthorizationDenied, KindAuthorizationDenied},
	{interfaces.ErrProviderError, KindProviderError},
	{interfaces.ErrUnsupportedNetwork, KindUnsupportedNetwork},
	{interfaces.ErrEncryptionProviderTimeout, KindEncryption},
	{interfaces.ErrEncryptionInputInvalid, KindEncryption},
	{interfaces.ErrEncryptionFailed, KindEncryption},
	{interfaces.ErrEncryptionResultEmpty, KindEncryption},
	{interfaces.ErrEncryptionResultUnusable, KindEncryption},
	{interfaces.ErrTransactionRejected, KindTransactionRejected},
	{interfaces.ErrTransactionReverted, KindTransactionReverted},
	{interfaces.ErrNoSession, KindNoSession},
	{interfaces.ErrEmptyName, KindEmptyName},
	{interfaces.ErrDomainTaken, KindDomainTaken},
	{interfaces.ErrSubmissionInFlight, KindInFlight},
}

// ErrorKind classifies a workflow error.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// NewErrorResponse wraps err.
func NewErrorResponse(err error) *ErrorResponse {
	return &ErrorResponse{Kind: ErrorKind(err), Message: err.Error()}
}
