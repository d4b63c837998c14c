package registration

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/encrypted-name-registry/encryption"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/ruteri/encrypted-name-registry/registry"
	"github.com/ruteri/encrypted-name-registry/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeSDK encrypts every owner to handle 0xCAFE with proof 0xBEEF.
type fakeSDK struct{}

func (fakeSDK) InitSDK(ctx context.Context) error { return nil }

func (fakeSDK) CreateInstance(ctx context.Context, cfg encryption.InstanceConfig) (encryption.Instance, error) {
	return fakeInstance{}, nil
}

type fakeInstance struct{}

func (fakeInstance) CreateEncryptedInput(contract, account common.Address) (encryption.EncryptedInput, error) {
	return &fakeInput{}, nil
}

type fakeInput struct {
	owner common.Address
}

func (i *fakeInput) AddAddress(addr common.Address) error {
	i.owner = addr
	return nil
}

func (i *fakeInput) Encrypt(ctx context.Context) (any, error) {
	return map[string]any{"handles": []any{"0xCAFE"}, "inputProof": "0xBEEF"}, nil
}

func newTestWorkflow(t *testing.T, slot *encryption.Slot) (*Workflow, *registry.MockRegistry) {
	t.Helper()

	cfg := network.Sepolia()
	reg := new(registry.MockRegistry)
	reg.On("Address").Return(cfg.RegistryContract).Maybe()

	factory := new(registry.MockRegistryFactory)
	factory.On("RegistryFor", mock.Anything, mock.Anything).Return(reg, nil)

	wf := NewWorkflow(Config{
		Network:    cfg,
		Provider:   wallet.NewMockProvider(cfg.ChainID, alice),
		Factory:    factory,
		Slot:       slot,
		ProbeDelay: 10 * time.Millisecond,
	})
	wf.Prober.RetryInterval = time.Millisecond
	wf.Builder.PollInterval = 5 * time.Millisecond
	wf.Builder.ReadyTimeout = 50 * time.Millisecond

	wf.Start()
	t.Cleanup(wf.Close)
	return wf, reg
}

func settled(wf *Workflow, name string, verdict interfaces.Verdict) func() bool {
	return func() bool {
		q := wf.Prober.Query()
		return q.Name == name && !q.Checking && q.Verdict == verdict
	}
}

func TestWorkflow_RegistersAvailableName(t *testing.T) {
	slot := encryption.NewSlot()
	slot.Publish(fakeSDK{})
	wf, reg := newTestWorkflow(t, slot)

	tx := testTx(9)
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0), nil)
	reg.On("RegisterDomain", mock.Anything, "alice", claim).Return(tx, nil).Once()
	reg.On("WaitMined", mock.Anything, tx).Return(minedReceipt(types.ReceiptStatusSuccessful), nil).Once()

	session, err := wf.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice, session.Account)

	wf.Prober.SetName("alice")
	require.Eventually(t, settled(wf, "alice", interfaces.VerdictAvailable), time.Second, 5*time.Millisecond)
	assert.True(t, wf.CanSubmit("alice"))

	record, err := wf.Register(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, interfaces.StatusSuccess, record.Status)
	assert.Equal(t, tx.Hash().Hex(), record.Reference)

	records := wf.Ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, interfaces.StatusSuccess, records[0].Status)
	assert.Equal(t, "", wf.Prober.Query().Name)
	reg.AssertExpectations(t)
}

func TestWorkflow_ReadErrorBlocksSubmission(t *testing.T) {
	wf, reg := newTestWorkflow(t, encryption.NewSlot())
	reg.On("ResolveOwnerHandle", mock.Anything, "bob").
		Return(nil, &network.ProviderRPCError{Code: -32000, Message: "header not found"})

	_, err := wf.Connect(context.Background())
	require.NoError(t, err)

	wf.Prober.SetName("bob")
	require.Eventually(t, settled(wf, "bob", interfaces.VerdictTaken), time.Second, 5*time.Millisecond)
	assert.False(t, wf.CanSubmit("bob"))

	_, err = wf.Register(context.Background(), "bob")
	assert.ErrorIs(t, err, interfaces.ErrDomainTaken)
	assert.Empty(t, wf.Ledger.Records())
	reg.AssertNotCalled(t, "RegisterDomain", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkflow_EncryptionProviderTimeout(t *testing.T) {
	wf, reg := newTestWorkflow(t, encryption.NewSlot())
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0), nil)

	_, err := wf.Connect(context.Background())
	require.NoError(t, err)

	record, err := wf.Register(context.Background(), "alice")
	require.ErrorIs(t, err, interfaces.ErrEncryptionProviderTimeout)

	assert.Equal(t, interfaces.StatusFailed, record.Status)
	assert.Equal(t, err.Error(), record.Error)
	assert.Zero(t, wf.Ledger.Pending())
	reg.AssertNotCalled(t, "RegisterDomain", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkflow_SessionChangesRefreshVerdict(t *testing.T) {
	wf, reg := newTestWorkflow(t, encryption.NewSlot())
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0xcafe), nil)

	_, err := wf.Connect(context.Background())
	require.NoError(t, err)

	wf.Prober.SetName("alice")
	require.Eventually(t, settled(wf, "alice", interfaces.VerdictTaken), time.Second, 5*time.Millisecond)

	wf.Disconnect()
	require.Eventually(t, settled(wf, "alice", interfaces.VerdictUnknown), time.Second, 5*time.Millisecond)
	assert.False(t, wf.CanSubmit("alice"))

	_, err = wf.Register(context.Background(), "alice")
	assert.ErrorIs(t, err, interfaces.ErrNoSession)

	_, err = wf.Connect(context.Background())
	require.NoError(t, err)
	require.Eventually(t, settled(wf, "alice", interfaces.VerdictTaken), time.Second, 5*time.Millisecond)
}

func TestWorkflow_NoProvider(t *testing.T) {
	wf := NewWorkflow(Config{Network: network.Sepolia()})
	wf.Start()
	defer wf.Close()

	_, err := wf.Connect(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrProviderMissing)
	assert.False(t, wf.CanSubmit("alice"))
}
