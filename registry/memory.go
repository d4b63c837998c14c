package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

const (
	memoryGasUsed  = 84_000
	memoryGasPrice = 2_000_000_000
)

// MemoryRegistry is an in-memory registry for tests and local runs without
// a chain. Registrations are mined immediately; registering a name that is
// already owned yields a reverted receipt, like the contract does.
type MemoryRegistry struct {
	mutex    sync.RWMutex
	address  common.Address
	owners   map[string]*big.Int
	receipts map[common.Hash]*types.Receipt
	nonce    uint64

	// ResolveErr, when set, fails every owner lookup.
	ResolveErr error
	// SendErr, when set, fails every registration before it is accepted.
	SendErr error
}

var _ interfaces.OnchainRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry reporting address.
func NewMemoryRegistry(address common.Address) *MemoryRegistry {
	return &MemoryRegistry{
		address:  address,
		owners:   make(map[string]*big.Int),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

// RegistryFor returns the registry itself, so it can stand in for a Factory.
func (m *MemoryRegistry) RegistryFor(backend interfaces.ChainBackend, auth *bind.TransactOpts) (interfaces.OnchainRegistry, error) {
	return m, nil
}

func (m *MemoryRegistry) Address() common.Address {
	return m.address
}

// SetOwner binds name to handle directly.
func (m *MemoryRegistry) SetOwner(name string, handle *big.Int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.owners[name] = new(big.Int).Set(handle)
}

func (m *MemoryRegistry) ResolveOwnerHandle(ctx context.Context, name string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if handle, ok := m.owners[name]; ok {
		return new(big.Int).Set(handle), nil
	}
	return new(big.Int), nil
}

func (m *MemoryRegistry) RegisterDomain(ctx context.Context, name string, claim interfaces.EncryptedClaim) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.SendErr != nil {
		return nil, m.SendErr
	}

	data, err := PackRegisterDomain(name, claim, ProofAppended)
	if err != nil {
		return nil, err
	}
	handle, _ := HandleToUint256(claim.Ciphertext)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	to := m.address
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    m.nonce,
		To:       &to,
		Gas:      memoryGasUsed,
		GasPrice: big.NewInt(memoryGasPrice),
		Data:     data,
	})
	m.nonce++

	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            tx.Hash(),
		GasUsed:           memoryGasUsed,
		EffectiveGasPrice: big.NewInt(memoryGasPrice),
		BlockNumber:       new(big.Int).SetUint64(m.nonce),
	}
	if owner, taken := m.owners[name]; taken && owner.Sign() != 0 {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		m.owners[name] = handle.ToBig()
	}
	m.receipts[tx.Hash()] = receipt
	return tx, nil
}

func (m *MemoryRegistry) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	receipt, ok := m.receipts[tx.Hash()]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	return receipt, nil
}
