package interfaces

import "errors"

// Error kinds surfaced by the registration workflow. Components wrap these
// with context; callers match them with errors.Is.
var (
	// ErrProviderMissing is returned when no wallet provider is configured.
	ErrProviderMissing = errors.New("wallet provider missing")
	// ErrAuthorizationDenied is returned when the user rejects account access.
	ErrAuthorizationDenied = errors.New("account authorization denied")
	// ErrProviderError wraps any other wallet provider failure.
	ErrProviderError = errors.New("wallet provider error")
	// ErrUnsupportedNetwork is returned when the wallet cannot be moved to the supported chain.
	ErrUnsupportedNetwork = errors.New("unsupported network, switch network manually")

	ErrEncryptionProviderTimeout = errors.New("encryption provider not loaded within timeout")
	ErrEncryptionInputInvalid    = errors.New("encrypted input is invalid")
	ErrEncryptionFailed          = errors.New("encryption failed")
	ErrEncryptionResultEmpty     = errors.New("could not extract ciphertext from encryption result")
	ErrEncryptionResultUnusable  = errors.New("encryption result cannot be converted to a ciphertext handle")

	// ErrTransactionRejected is returned when the user declines to sign.
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrTransactionReverted is returned when a mined transaction has a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrAvailabilityCheckAmbiguous marks a failed owner lookup. It is resolved
	// to a taken verdict and never returned to the presentation layer.
	ErrAvailabilityCheckAmbiguous = errors.New("availability check ambiguous")

	ErrNoSession          = errors.New("no wallet session")
	ErrEmptyName          = errors.New("empty domain name")
	ErrDomainTaken        = errors.New("domain already registered")
	ErrSubmissionInFlight = errors.New("registration already in progress")
)
