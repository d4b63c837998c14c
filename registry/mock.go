package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the OnchainRegistry interface
type MockRegistry struct {
	mock.Mock
}

// Address mocks the Address method
func (m *MockRegistry) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// ResolveOwnerHandle mocks the ResolveOwnerHandle method
func (m *MockRegistry) ResolveOwnerHandle(ctx context.Context, name string) (*big.Int, error) {
	args := m.Called(ctx, name)
	handle, _ := args.Get(0).(*big.Int)
	return handle, args.Error(1)
}

// RegisterDomain mocks the RegisterDomain method
func (m *MockRegistry) RegisterDomain(ctx context.Context, name string, claim interfaces.EncryptedClaim) (*types.Transaction, error) {
	args := m.Called(ctx, name, claim)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

// WaitMined mocks the WaitMined method
func (m *MockRegistry) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	args := m.Called(ctx, tx)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

// MockRegistryFactory mocks the RegistryFactory interface
type MockRegistryFactory struct {
	mock.Mock
}

// RegistryFor mocks the RegistryFor method
func (m *MockRegistryFactory) RegistryFor(backend interfaces.ChainBackend, auth *bind.TransactOpts) (interfaces.OnchainRegistry, error) {
	args := m.Called(backend, auth)
	reg, _ := args.Get(0).(interfaces.OnchainRegistry)
	return reg, args.Error(1)
}
