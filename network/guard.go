package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// EIP-1193 / EIP-3326 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnsupportedMethod = 4200
	CodeUnknownChain      = 4902
)

// Outcome tells the caller whether negotiated state has to be reloaded.
type Outcome int

const (
	// AlreadySupported means nothing changed.
	AlreadySupported Outcome = iota
	// Switched means the wallet moved to the supported chain.
	Switched
	// Added means the wallet learnt the network and moved to it.
	Added
)

// NeedsReload reports whether state negotiated before the call is stale.
func (o Outcome) NeedsReload() bool {
	return o != AlreadySupported
}

// Guard ensures a wallet is attached to the supported chain.
type Guard struct {
	cfg Config
	log *slog.Logger
}

func NewGuard(cfg Config, log *slog.Logger) *Guard {
	return &Guard{cfg: cfg, log: common.OrDefault(log)}
}

// Config returns the supported network.
func (g *Guard) Config() Config {
	return g.cfg
}

// State reads the chain the wallet currently reports.
func (g *Guard) State(ctx context.Context, wallet interfaces.WalletProvider) (interfaces.NetworkState, error) {
	chainID, err := wallet.ChainID(ctx)
	if err != nil {
		return interfaces.NetworkState{}, fmt.Errorf("%w: %s", interfaces.ErrProviderError, err.Error())
	}
	return interfaces.NetworkState{ChainID: chainID}, nil
}

// Supported reports whether state is the supported chain.
func (g *Guard) Supported(state interfaces.NetworkState) bool {
	return state.ChainID == g.cfg.ChainID
}

// EnsureSupportedNetwork moves wallet to the supported chain, adding the
// network first when the wallet does not know it. A Switched or Added outcome
// means any state negotiated earlier must be reloaded.
func (g *Guard) EnsureSupportedNetwork(ctx context.Context, wallet interfaces.WalletProvider) (Outcome, error) {
	state, err := g.State(ctx, wallet)
	if err != nil {
		return AlreadySupported, err
	}
	if g.Supported(state) {
		return AlreadySupported, nil
	}

	g.log.Info("Wallet on unsupported chain, requesting switch", "chainID", state.ChainID, "required", g.cfg.ChainID)

	err = wallet.SwitchChain(ctx, g.cfg.ChainID)
	if err == nil {
		return Switched, nil
	}
	if ErrorCode(err) != CodeUnknownChain {
		g.log.Warn("Chain switch declined", "err", err)
		return AlreadySupported, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedNetwork, err.Error())
	}

	g.log.Info("Wallet does not know the network, requesting add", "chain", g.cfg.Name)
	if err := wallet.AddChain(ctx, g.cfg.ChainParams()); err != nil {
		g.log.Warn("Adding network failed", "err", err)
		return AlreadySupported, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedNetwork, err.Error())
	}
	if err := wallet.SwitchChain(ctx, g.cfg.ChainID); err != nil {
		g.log.Warn("Chain switch after add failed", "err", err)
		return AlreadySupported, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedNetwork, err.Error())
	}
	return Added, nil
}

// ErrorCode extracts a JSON-RPC error code from err, or 0 when it has none.
func ErrorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

// ProviderRPCError is a wallet error carrying an EIP-1193 code.
type ProviderRPCError struct {
	Code    int
	Message string
}

func (e *ProviderRPCError) Error() string  { return e.Message }
func (e *ProviderRPCError) ErrorCode() int { return e.Code }

// UserRejected returns the error a wallet reports when the user declines a request.
func UserRejected(msg string) error {
	return &ProviderRPCError{Code: CodeUserRejected, Message: msg}
}

// UnknownChain returns the error a wallet reports for a chain it has not been told about.
func UnknownChain(msg string) error {
	return &ProviderRPCError{Code: CodeUnknownChain, Message: msg}
}
