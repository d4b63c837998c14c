package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry(registryAddr)
	claim := interfaces.EncryptedClaim{Ciphertext: []byte{0xca, 0xfe}, Proof: []byte{0xbe, 0xef}}

	handle, err := reg.ResolveOwnerHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, handle.Sign())

	tx, err := reg.RegisterDomain(ctx, "alice", claim)
	require.NoError(t, err)
	receipt, err := reg.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	handle, err = reg.ResolveOwnerHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0xcafe), handle.Int64())

	// second registration of the same name reverts
	tx, err = reg.RegisterDomain(ctx, "alice", claim)
	require.NoError(t, err)
	receipt, err = reg.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestMemoryRegistry_Errors(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry(registryAddr)
	reg.SetOwner("taken", big.NewInt(7))

	handle, err := reg.ResolveOwnerHandle(ctx, "taken")
	require.NoError(t, err)
	assert.Equal(t, int64(7), handle.Int64())

	reg.ResolveErr = errors.New("rpc down")
	_, err = reg.ResolveOwnerHandle(ctx, "taken")
	assert.Error(t, err)

	reg.SendErr = errors.New("nonce too low")
	_, err = reg.RegisterDomain(ctx, "free", interfaces.EncryptedClaim{Ciphertext: []byte{1}})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = reg.WaitMined(cancelled, types.NewTx(&types.LegacyTx{}))
	assert.ErrorIs(t, err, context.Canceled)
}
