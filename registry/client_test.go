package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registryAddr = common.HexToAddress("0x64C68a9dE828712C3DfC9867Ed619E24f140c749")

// fakeBackend answers the handful of chain calls the client makes.
type fakeBackend struct {
	interfaces.ChainBackend

	mutex    sync.Mutex
	output   []byte
	callErr  error
	calls    []ethereum.CallMsg
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.calls = append(b.calls, msg)
	return b.output, b.callErr
}

func (b *fakeBackend) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func testTransactor(t *testing.T) *bind.TransactOpts {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(11155111))
	require.NoError(t, err)
	// fixed gas fields keep the transactor away from estimation calls
	auth.GasPrice = big.NewInt(1_000_000_000)
	auth.GasLimit = 200_000
	auth.Nonce = big.NewInt(3)
	return auth
}

func TestResolveOwnerHandle(t *testing.T) {
	out, err := parsedABI.Methods["resolveOwnerHandle"].Outputs.Pack(big.NewInt(0xcafe))
	require.NoError(t, err)
	backend := &fakeBackend{output: out}
	client := NewClient(backend, registryAddr, nil, ProofAppended)

	handle, err := client.ResolveOwnerHandle(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0xcafe), handle.Int64())

	require.Len(t, backend.calls, 1)
	assert.Equal(t, registryAddr, *backend.calls[0].To)
	assert.Equal(t, parsedABI.Methods["resolveOwnerHandle"].ID, backend.calls[0].Data[:4])

	args, err := parsedABI.Methods["resolveOwnerHandle"].Inputs.Unpack(backend.calls[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, "alice", args[0])
}

func TestResolveOwnerHandle_Error(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("execution reverted")}
	client := NewClient(backend, registryAddr, nil, ProofAppended)

	_, err := client.ResolveOwnerHandle(context.Background(), "alice")
	assert.ErrorContains(t, err, "execution reverted")
}

func TestNameOf(t *testing.T) {
	out, err := parsedABI.Methods["nameOf"].Outputs.Pack("alice")
	require.NoError(t, err)
	backend := &fakeBackend{output: out}
	client := NewClient(backend, registryAddr, nil, ProofAppended)

	name, err := client.NameOf(context.Background(), NameHash("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestRegisterDomain_NoTransactor(t *testing.T) {
	client := NewClient(&fakeBackend{}, registryAddr, nil, ProofAppended)
	_, err := client.RegisterDomain(context.Background(), "alice", interfaces.EncryptedClaim{Ciphertext: []byte{0xca, 0xfe}})
	assert.ErrorIs(t, err, ErrNoTransactOpts)
}

func TestRegisterDomain_ProofConventions(t *testing.T) {
	claim := interfaces.EncryptedClaim{Ciphertext: []byte{0xca, 0xfe}, Proof: []byte{0xbe, 0xef}}

	for _, convention := range []ProofConvention{ProofAppended, ProofOmitted} {
		t.Run(convention.String(), func(t *testing.T) {
			backend := &fakeBackend{}
			auth := testTransactor(t)
			client := NewClient(backend, registryAddr, auth, convention)

			tx, err := client.RegisterDomain(context.Background(), "alice", claim)
			require.NoError(t, err)
			require.Len(t, backend.sent, 1)
			assert.Equal(t, tx.Hash(), backend.sent[0].Hash())
			assert.Equal(t, registryAddr, *tx.To())
			assert.Equal(t, uint64(3), tx.Nonce())

			data := tx.Data()
			method := parsedABI.Methods["registerDomain"]
			assert.Equal(t, method.ID, data[:4])

			args, err := method.Inputs.Unpack(data[4:])
			require.NoError(t, err)
			assert.Equal(t, "alice", args[0])
			assert.Equal(t, int64(0xcafe), args[1].(*big.Int).Int64())

			bare, err := method.Inputs.Pack("alice", big.NewInt(0xcafe))
			require.NoError(t, err)
			if convention == ProofAppended {
				assert.Equal(t, append(bare, 0xbe, 0xef), data[4:])
			} else {
				assert.Equal(t, bare, data[4:])
			}

			sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
			require.NoError(t, err)
			assert.Equal(t, auth.From, sender)
		})
	}
}

func TestRegisterDomain_HandleOverflow(t *testing.T) {
	client := NewClient(&fakeBackend{}, registryAddr, testTransactor(t), ProofAppended)
	claim := interfaces.EncryptedClaim{Ciphertext: make([]byte, 33)}
	claim.Ciphertext[0] = 1

	_, err := client.RegisterDomain(context.Background(), "alice", claim)
	assert.ErrorIs(t, err, ErrHandleOverflow)
}

func TestHandleToUint256(t *testing.T) {
	v, err := HandleToUint256([]byte{0xca, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, uint64(0xcafe), v.Uint64())

	// leading zero bytes do not count toward the width
	v, err = HandleToUint256(append(make([]byte, 8), make([]byte, 32)...))
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = HandleToUint256(append([]byte{1}, make([]byte, 32)...))
	assert.ErrorIs(t, err, ErrHandleOverflow)
}

func TestWaitMined(t *testing.T) {
	backend := &fakeBackend{receipts: map[common.Hash]*types.Receipt{}}
	client := NewClient(backend, registryAddr, testTransactor(t), ProofAppended)

	tx, err := client.RegisterDomain(context.Background(), "alice", interfaces.EncryptedClaim{Ciphertext: []byte{1}})
	require.NoError(t, err)
	backend.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}

	receipt, err := client.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}

func TestDomainRegistered(t *testing.T) {
	registrar := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	event := parsedABI.Events["DomainRegistered"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(0xcafe))
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: common.HexToAddress("0x01"), Topics: []common.Hash{event.ID}},
		{
			Address: registryAddr,
			Topics:  []common.Hash{event.ID, NameHash("alice"), common.BytesToHash(registrar.Bytes())},
			Data:    data,
		},
	}}

	client := NewClient(&fakeBackend{}, registryAddr, nil, ProofAppended)
	ev, err := client.DomainRegistered(receipt)
	require.NoError(t, err)
	assert.Equal(t, [32]byte(NameHash("alice")), ev.NameHash)
	assert.Equal(t, int64(0xcafe), ev.Owner.Int64())
	assert.Equal(t, registrar, ev.Registrar)

	_, err = client.DomainRegistered(&types.Receipt{})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestNameHash(t *testing.T) {
	assert.Equal(t, crypto.Keccak256Hash([]byte("alice")), NameHash("alice"))
	assert.NotEqual(t, NameHash("alice"), NameHash("bob"))
}

func TestFactory(t *testing.T) {
	factory := NewFactory(registryAddr, ProofOmitted)

	reg, err := factory.RegistryFor(&fakeBackend{}, nil)
	require.NoError(t, err)
	assert.Equal(t, registryAddr, reg.Address())

	_, err = factory.RegistryFor(nil, nil)
	assert.Error(t, err)
}
