package wallet

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWallet serves the eth_ and wallet_ namespaces of a browser wallet.
type fakeWallet struct {
	mutex    sync.Mutex
	key      *ecdsa.PrivateKey
	accounts []common.Address
	chainID  uint64
	known    map[uint64]bool
	reject   bool
}

type fakeEthAPI struct{ w *fakeWallet }
type fakeWalletAPI struct{ w *fakeWallet }

func (a *fakeEthAPI) RequestAccounts() ([]common.Address, error) {
	a.w.mutex.Lock()
	defer a.w.mutex.Unlock()
	if a.w.reject {
		return nil, network.UserRejected("User rejected the request.")
	}
	return a.w.accounts, nil
}

func (a *fakeEthAPI) Accounts() []common.Address {
	a.w.mutex.Lock()
	defer a.w.mutex.Unlock()
	return a.w.accounts
}

func (a *fakeEthAPI) ChainId() hexutil.Uint64 {
	a.w.mutex.Lock()
	defer a.w.mutex.Unlock()
	return hexutil.Uint64(a.w.chainID)
}

func (a *fakeEthAPI) SignTransaction(args signTxArgs) (*signTxResult, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(args.Nonce),
		GasPrice: args.GasPrice.ToInt(),
		Gas:      uint64(args.Gas),
		To:       args.To,
		Value:    args.Value.ToInt(),
		Data:     args.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(args.ChainID.ToInt()), a.w.key)
	if err != nil {
		return nil, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &signTxResult{Raw: raw}, nil
}

func (a *fakeWalletAPI) SwitchEthereumChain(p switchChainParams) error {
	id, err := hexutil.DecodeUint64(p.ChainID)
	if err != nil {
		return err
	}
	a.w.mutex.Lock()
	defer a.w.mutex.Unlock()
	if !a.w.known[id] {
		return network.UnknownChain("Unrecognized chain ID " + p.ChainID)
	}
	a.w.chainID = id
	return nil
}

func (a *fakeWalletAPI) AddEthereumChain(p interfaces.ChainParams) error {
	id, err := hexutil.DecodeUint64(p.ChainID)
	if err != nil {
		return err
	}
	a.w.mutex.Lock()
	defer a.w.mutex.Unlock()
	a.w.known[id] = true
	return nil
}

func newFakeWalletProvider(t *testing.T, chainID uint64) (*RPCProvider, *fakeWallet) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	w := &fakeWallet{
		key:      key,
		accounts: []common.Address{crypto.PubkeyToAddress(key.PublicKey)},
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
	}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &fakeEthAPI{w}))
	require.NoError(t, server.RegisterName("wallet", &fakeWalletAPI{w}))
	t.Cleanup(server.Stop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewRPCProvider(rpc.DialInProc(server), logger, 10*time.Millisecond)
	t.Cleanup(p.Close)
	return p, w
}

func TestRPCProvider_RequestAccounts(t *testing.T) {
	p, w := newFakeWalletProvider(t, 1)

	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w.accounts, accounts)

	w.reject = true
	_, err = p.RequestAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, network.CodeUserRejected, network.ErrorCode(err))
}

func TestRPCProvider_SwitchAndAddChain(t *testing.T) {
	p, _ := newFakeWalletProvider(t, 1)
	ctx := context.Background()
	sepolia := network.Sepolia()

	err := p.SwitchChain(ctx, sepolia.ChainID)
	require.Error(t, err)
	assert.Equal(t, network.CodeUnknownChain, network.ErrorCode(err))

	require.NoError(t, p.AddChain(ctx, sepolia.ChainParams()))
	require.NoError(t, p.SwitchChain(ctx, sepolia.ChainID))

	chainID, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, sepolia.ChainID, chainID)
}

func TestRPCProvider_GuardAddsNetwork(t *testing.T) {
	p, _ := newFakeWalletProvider(t, 1)
	guard := network.NewGuard(network.Sepolia(), nil)

	outcome, err := guard.EnsureSupportedNetwork(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, network.Added, outcome)
}

func TestRPCProvider_SignerDelegatesToWallet(t *testing.T) {
	chainID := network.Sepolia().ChainID
	p, w := newFakeWalletProvider(t, chainID)
	from := w.accounts[0]
	to := common.HexToAddress("0x64C68a9dE828712C3DfC9867Ed619E24f140c749")

	opts, err := p.Signer(context.Background(), from)
	require.NoError(t, err)

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      100_000,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     []byte{0xde, 0xad},
	})
	signed, err := opts.Signer(from, unsigned)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), signed)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
	assert.Equal(t, uint64(7), signed.Nonce())
	assert.Equal(t, []byte{0xde, 0xad}, signed.Data())

	_, err = opts.Signer(common.HexToAddress("0x01"), unsigned)
	assert.ErrorIs(t, err, bind.ErrNotAuthorized)
}

func TestRPCProvider_PollsForChanges(t *testing.T) {
	p, w := newFakeWalletProvider(t, 1)

	events := make(chan interfaces.ProviderEvent, 4)
	sub := p.SubscribeEvents(events)
	defer sub.Unsubscribe()

	// let the poller record the initial state
	time.Sleep(50 * time.Millisecond)

	w.mutex.Lock()
	w.chainID = 5
	w.mutex.Unlock()

	select {
	case ev := <-events:
		assert.Equal(t, interfaces.ChainChanged, ev.Kind)
		assert.Equal(t, uint64(5), ev.ChainID)
	case <-time.After(time.Second):
		t.Fatal("no chain change delivered")
	}

	w.mutex.Lock()
	w.accounts = nil
	w.mutex.Unlock()

	select {
	case ev := <-events:
		assert.Equal(t, interfaces.AccountsChanged, ev.Kind)
		assert.Empty(t, ev.Accounts)
	case <-time.After(time.Second):
		t.Fatal("no account change delivered")
	}
}
