package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	rcommon "github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

const (
	// DefaultPollInterval is how often an RPCProvider looks for account and chain changes.
	DefaultPollInterval = 2 * time.Second

	// signTimeout bounds how long the wallet user may take to approve a signature.
	signTimeout = 5 * time.Minute
)

// RPCProvider talks to a wallet over JSON-RPC using the EIP-1193 method
// names. Wallets reached this way cannot push notifications, so account and
// chain changes are detected by polling once a subscriber exists.
type RPCProvider struct {
	client *rpc.Client
	eth    *ethclient.Client
	log    *slog.Logger

	pollInterval time.Duration

	feed  event.Feed
	scope event.SubscriptionScope

	startOnce sync.Once
	closeOnce sync.Once
	quit      chan struct{}
}

// NewRPCProvider wraps an established JSON-RPC client.
func NewRPCProvider(client *rpc.Client, log *slog.Logger, pollInterval time.Duration) *RPCProvider {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &RPCProvider{
		client:       client,
		eth:          ethclient.NewClient(client),
		log:          rcommon.OrDefault(log),
		pollInterval: pollInterval,
		quit:         make(chan struct{}),
	}
}

// DialRPCProvider connects to the wallet endpoint at url.
func DialRPCProvider(ctx context.Context, url string, log *slog.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet RPC: %w", err)
	}
	return NewRPCProvider(client, log, DefaultPollInterval), nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexutil.EncodeUint64(chainID)})
}

func (p *RPCProvider) AddChain(ctx context.Context, params interfaces.ChainParams) error {
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

// Signer returns options whose signing step is delegated to the wallet
// through eth_signTransaction. The transaction itself is broadcast by the
// contract binding over Backend.
func (p *RPCProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{
		From: account,
		Signer: func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if from != account {
				return nil, bind.ErrNotAuthorized
			}
			signCtx, cancel := context.WithTimeout(context.Background(), signTimeout)
			defer cancel()
			return p.signTransaction(signCtx, from, tx)
		},
	}, nil
}

type signTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

type signTxResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

func (p *RPCProvider) signTransaction(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	args := signTxArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(new(big.Int).SetUint64(chainID)),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}

	var res signTxResult
	if err := p.client.CallContext(ctx, &res, "eth_signTransaction", args); err != nil {
		return nil, err
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(res.Raw); err != nil {
		return nil, fmt.Errorf("wallet returned malformed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	if err != nil {
		return nil, fmt.Errorf("wallet returned unsigned transaction: %w", err)
	}
	if sender != from {
		return nil, fmt.Errorf("wallet signed as %s, expected %s", sender, from)
	}
	return signed, nil
}

func (p *RPCProvider) Backend() interfaces.ChainBackend {
	return p.eth
}

// SubscribeEvents starts the change poller on first use.
func (p *RPCProvider) SubscribeEvents(ch chan<- interfaces.ProviderEvent) event.Subscription {
	p.startOnce.Do(func() { go p.poll() })
	return p.scope.Track(p.feed.Subscribe(ch))
}

func (p *RPCProvider) poll() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var (
		lastChain    uint64
		lastAccounts []common.Address
		primed       bool
	)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval)
		chainID, chainErr := p.ChainID(ctx)
		accounts, accountsErr := p.accounts(ctx)
		cancel()

		switch {
		case chainErr != nil || accountsErr != nil:
			p.log.Debug("Wallet poll failed", "chainErr", chainErr, "accountsErr", accountsErr)
		case !primed:
			lastChain, lastAccounts, primed = chainID, accounts, true
		default:
			if chainID != lastChain {
				lastChain = chainID
				p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.ChainChanged, ChainID: chainID})
			}
			if !slices.Equal(accounts, lastAccounts) {
				lastAccounts = accounts
				p.feed.Send(interfaces.ProviderEvent{Kind: interfaces.AccountsChanged, Accounts: accounts})
			}
		}

		select {
		case <-p.quit:
			return
		case <-ticker.C:
		}
	}
}

// Close stops the poller, ends all subscriptions and closes the connection.
func (p *RPCProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.scope.Close()
		p.client.Close()
	})
}

func parseQuantity(s string) (uint64, error) {
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return v, nil
}
