package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
)

// MockProvider is an in-memory wallet for tests. It tracks the chains it
// knows, can be told to reject requests and lets tests emit notifications.
type MockProvider struct {
	mutex       sync.Mutex
	accounts    []common.Address
	chainID     uint64
	knownChains map[uint64]bool
	backend     interfaces.ChainBackend

	RejectAccounts bool
	RejectSwitch   bool
	RejectAdd      bool
	AccountsErr    error

	Requests []string
	Added    []interfaces.ChainParams

	feed event.Feed
}

// NewMockProvider creates a wallet holding accounts attached to chainID.
func NewMockProvider(chainID uint64, accounts ...common.Address) *MockProvider {
	return &MockProvider{
		accounts:    accounts,
		chainID:     chainID,
		knownChains: map[uint64]bool{chainID: true},
	}
}

// SetBackend sets the transport returned by Backend.
func (m *MockProvider) SetBackend(b interfaces.ChainBackend) {
	m.backend = b
}

// Know marks chainID as a network the wallet can switch to.
func (m *MockProvider) Know(chainID uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.knownChains[chainID] = true
}

func (m *MockProvider) record(req string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Requests = append(m.Requests, req)
}

func (m *MockProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	m.record("eth_requestAccounts")
	if m.AccountsErr != nil {
		return nil, m.AccountsErr
	}
	if m.RejectAccounts {
		return nil, network.UserRejected("User rejected the request.")
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]common.Address(nil), m.accounts...), nil
}

func (m *MockProvider) ChainID(ctx context.Context) (uint64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.chainID, nil
}

func (m *MockProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	m.record("wallet_switchEthereumChain")
	if m.RejectSwitch {
		return network.UserRejected("User rejected the request.")
	}
	m.mutex.Lock()
	if !m.knownChains[chainID] {
		m.mutex.Unlock()
		return network.UnknownChain("Unrecognized chain ID")
	}
	m.chainID = chainID
	m.mutex.Unlock()

	m.feed.Send(interfaces.ProviderEvent{Kind: interfaces.ChainChanged, ChainID: chainID})
	return nil
}

func (m *MockProvider) AddChain(ctx context.Context, params interfaces.ChainParams) error {
	m.record("wallet_addEthereumChain")
	if m.RejectAdd {
		return network.UserRejected("User rejected the request.")
	}
	chainID, err := parseQuantity(params.ChainID)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.knownChains[chainID] = true
	m.Added = append(m.Added, params)
	return nil
}

func (m *MockProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account}, nil
}

func (m *MockProvider) Backend() interfaces.ChainBackend {
	return m.backend
}

func (m *MockProvider) SubscribeEvents(ch chan<- interfaces.ProviderEvent) event.Subscription {
	return m.feed.Subscribe(ch)
}

// SetAccounts replaces the wallet's accounts and notifies subscribers.
func (m *MockProvider) SetAccounts(accounts ...common.Address) {
	m.mutex.Lock()
	m.accounts = accounts
	m.mutex.Unlock()
	m.feed.Send(interfaces.ProviderEvent{Kind: interfaces.AccountsChanged, Accounts: accounts})
}

// SetChain moves the wallet to chainID from outside and notifies subscribers.
func (m *MockProvider) SetChain(chainID uint64) {
	m.mutex.Lock()
	m.chainID = chainID
	m.knownChains[chainID] = true
	m.mutex.Unlock()
	m.feed.Send(interfaces.ProviderEvent{Kind: interfaces.ChainChanged, ChainID: chainID})
}

// RequestCount returns how many times req was issued.
func (m *MockProvider) RequestCount(req string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, r := range m.Requests {
		if r == req {
			n++
		}
	}
	return n
}
