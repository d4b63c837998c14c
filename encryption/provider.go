// Package encryption turns a plaintext owner address into the ciphertext
// handle and validity proof the registry expects, using whichever
// encryption provider has been published into a Slot.
package encryption

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// InstanceConfig configures a provider instance for one network.
type InstanceConfig struct {
	ChainID    uint64
	GatewayURL string
	// Transport is the wallet the instance may use to reach the chain.
	Transport interfaces.WalletProvider
}

// SDK is a loaded encryption provider library.
type SDK interface {
	InitSDK(ctx context.Context) error
	CreateInstance(ctx context.Context, cfg InstanceConfig) (Instance, error)
}

// Instance is a provider configured for one network.
type Instance interface {
	CreateEncryptedInput(contract, account common.Address) (EncryptedInput, error)
}

// EncryptedInput is an input session scoped to a contract and the account
// that will submit it. Its result shape is provider specific, see Normalize.
type EncryptedInput interface {
	Encrypt(ctx context.Context) (any, error)
}

// AddressAdder is implemented by inputs accepting address-typed values.
type AddressAdder interface {
	AddAddress(addr common.Address) error
}

// EncryptFunc is an encrypt operation detached from the input it belongs to.
type EncryptFunc func(ctx context.Context, owner EncryptedInput) (any, error)

// EncryptBinder is implemented by inputs whose encrypt operation has to be
// invoked with its owning input passed explicitly.
type EncryptBinder interface {
	EncryptFunc() EncryptFunc
}

// NestedInput is implemented by inputs wrapping an internal input object.
type NestedInput interface {
	Internal() EncryptedInput
}
