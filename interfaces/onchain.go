package interfaces

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// NativeCurrency describes the chain's native token as expected by wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainParams are the canonical parameters of a network handed to a wallet
// that does not know it yet.
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// ProviderEventKind distinguishes wallet notifications.
type ProviderEventKind int

const (
	ChainChanged ProviderEventKind = iota
	AccountsChanged
)

func (k ProviderEventKind) String() string {
	if k == ChainChanged {
		return "chainChanged"
	}
	return "accountsChanged"
}

// ProviderEvent is a typed wallet notification.
type ProviderEvent struct {
	Kind     ProviderEventKind
	ChainID  uint64
	Accounts []common.Address
}

// ChainBackend is the chain transport a wallet exposes for contract calls
// and receipt tracking.
type ChainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// WalletProvider is the external wallet the user holds their account in.
type WalletProvider interface {
	// RequestAccounts asks the user to authorize account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the chain the wallet is currently attached to.
	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain asks the wallet to move to chainID.
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain asks the wallet to learn a new network.
	AddChain(ctx context.Context, params ChainParams) error

	// Signer returns transaction options signing as account.
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)

	// Backend returns the chain transport of the wallet.
	Backend() ChainBackend

	// SubscribeEvents delivers chain and account changes until unsubscribed.
	SubscribeEvents(ch chan<- ProviderEvent) event.Subscription
}

// OnchainRegistry is the subset of the domain registry contract used by the workflow.
type OnchainRegistry interface {
	Address() common.Address

	// ResolveOwnerHandle returns the encrypted owner handle bound to name, zero when unbound.
	ResolveOwnerHandle(ctx context.Context, name string) (*big.Int, error)

	// RegisterDomain sends registerDomain(name, claim.Ciphertext) carrying claim.Proof.
	RegisterDomain(ctx context.Context, name string, claim EncryptedClaim) (*types.Transaction, error)

	// WaitMined blocks until tx is included and returns its receipt.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// RegistryFactory binds the registry contract to a wallet's transport and signer.
type RegistryFactory interface {
	RegistryFor(backend ChainBackend, auth *bind.TransactOpts) (OnchainRegistry, error)
}

// Session is the live, authorized binding to one wallet account on one chain.
type Session struct {
	Account     common.Address  `json:"account"`
	ChainID     uint64          `json:"chain_id"`
	ConnectedAt time.Time       `json:"connected_at"`
	Registry    OnchainRegistry `json:"-"`
}

// NetworkState is the chain identifier last reported by the wallet.
type NetworkState struct {
	ChainID uint64 `json:"chain_id"`
}

// SessionEventKind distinguishes session lifecycle notifications.
type SessionEventKind int

const (
	SessionConnected SessionEventKind = iota
	SessionCleared
	SessionReloaded
)

// SessionEvent is published whenever the connector replaces or clears the session.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}
