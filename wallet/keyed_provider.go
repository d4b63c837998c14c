package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
)

// KeyedBackend is a chain transport that can also report its chain id.
type KeyedBackend interface {
	interfaces.ChainBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// KeyedProvider is a headless wallet holding a single private key and
// bound to whatever chain its backend serves. It never changes accounts or
// chains on its own.
type KeyedProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend KeyedBackend
	feed    event.Feed
}

// NewKeyedProvider creates a wallet signing with key.
func NewKeyedProvider(key *ecdsa.PrivateKey, backend KeyedBackend) *KeyedProvider {
	return &KeyedProvider{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}
}

// NewKeyedProviderFromHex parses a hex private key, with or without 0x prefix.
func NewKeyedProviderFromHex(hexKey string, backend KeyedBackend) (*KeyedProvider, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyedProvider(key, backend), nil
}

func (k *KeyedProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{k.address}, nil
}

func (k *KeyedProvider) ChainID(ctx context.Context) (uint64, error) {
	id, err := k.backend.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (k *KeyedProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	current, err := k.ChainID(ctx)
	if err != nil {
		return err
	}
	if current != chainID {
		return network.UnknownChain(fmt.Sprintf("keyed wallet is bound to chain %d", current))
	}
	return nil
}

func (k *KeyedProvider) AddChain(ctx context.Context, params interfaces.ChainParams) error {
	return &network.ProviderRPCError{Code: network.CodeUnsupportedMethod, Message: "keyed wallet cannot add networks"}
}

func (k *KeyedProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if account != k.address {
		return nil, bind.ErrNotAuthorized
	}
	chainID, err := k.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(k.key, chainID)
}

func (k *KeyedProvider) Backend() interfaces.ChainBackend {
	return k.backend
}

func (k *KeyedProvider) SubscribeEvents(ch chan<- interfaces.ProviderEvent) event.Subscription {
	return k.feed.Subscribe(ch)
}
