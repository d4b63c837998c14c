package clients_test

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/encrypted-name-registry/api"
	"github.com/ruteri/encrypted-name-registry/api/clients"
	"github.com/ruteri/encrypted-name-registry/encryption"
	"github.com/ruteri/encrypted-name-registry/httpserver"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/ruteri/encrypted-name-registry/registration"
	"github.com/ruteri/encrypted-name-registry/registry"
	"github.com/ruteri/encrypted-name-registry/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSDK struct{}

func (staticSDK) InitSDK(ctx context.Context) error { return nil }

func (staticSDK) CreateInstance(ctx context.Context, cfg encryption.InstanceConfig) (encryption.Instance, error) {
	return staticSDK{}, nil
}

func (staticSDK) CreateEncryptedInput(contract, account common.Address) (encryption.EncryptedInput, error) {
	return staticInput{}, nil
}

type staticInput struct{}

func (staticInput) AddAddress(common.Address) error { return nil }

func (staticInput) Encrypt(ctx context.Context) (any, error) {
	return map[string]any{"handles": []any{"0x01"}, "inputProof": "0x02"}, nil
}

func newBridge(t *testing.T) (*clients.RegistrarClient, *registry.MemoryRegistry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := network.Sepolia()

	slot := encryption.NewSlot()
	slot.Publish(staticSDK{})
	reg := registry.NewMemoryRegistry(cfg.RegistryContract)

	wf := registration.NewWorkflow(registration.Config{
		Network:  cfg,
		Provider: wallet.NewMockProvider(cfg.ChainID, common.HexToAddress("0xa11ce")),
		Factory:  reg,
		Slot:     slot,
		Log:      logger,
	})
	wf.Start()
	t.Cleanup(wf.Close)

	router := chi.NewRouter()
	httpserver.NewHandler(wf, logger).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return clients.NewRegistrarClient(srv.URL+"/", logger), reg
}

func TestRegistrarClient_Workflow(t *testing.T) {
	client, reg := newBridge(t)
	reg.SetOwner("bob", big.NewInt(7))
	ctx := context.Background()

	_, err := client.Check(ctx, "alice")
	require.Error(t, err)
	assert.True(t, clients.IsKind(err, api.KindNoSession))

	session, err := client.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, session.Connected)

	domain, err := client.Check(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, interfaces.VerdictTaken, domain.Verdict)
	assert.False(t, domain.CanSubmit)

	_, err = client.Register(ctx, "bob")
	var reqErr *clients.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusConflict, reqErr.StatusCode)
	assert.Equal(t, api.KindDomainTaken, reqErr.Response.Kind)

	resp, err := client.Register(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, resp.Record)
	assert.Equal(t, interfaces.StatusSuccess, resp.Record.Status)

	ledger, err := client.Ledger(ctx)
	require.NoError(t, err)
	require.Len(t, ledger.Records, 1)
	assert.Equal(t, "alice", ledger.Records[0].Name)

	require.NoError(t, client.Disconnect(ctx))
	current, err := client.Session(ctx)
	require.NoError(t, err)
	assert.False(t, current.Connected)
}

func TestRegistrarClient_FailedRecordSurvivesError(t *testing.T) {
	client, reg := newBridge(t)
	reg.SendErr = network.UserRejected("User denied transaction signature.")
	ctx := context.Background()

	_, err := client.Connect(ctx)
	require.NoError(t, err)

	resp, err := client.Register(ctx, "alice")
	require.Error(t, err)
	assert.True(t, clients.IsKind(err, api.KindTransactionRejected))
	require.NotNil(t, resp.Record)
	assert.Equal(t, interfaces.StatusFailed, resp.Record.Status)
}

func TestRegistrarClient_SetDomain(t *testing.T) {
	client, _ := newBridge(t)
	ctx := context.Background()

	domain, err := client.SetDomain(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", domain.Name)

	current, err := client.Domain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "carol", current.Name)
}
