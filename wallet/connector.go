// Package wallet negotiates an authorized account session with a wallet
// provider and keeps it consistent with the wallet's account and chain.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	rcommon "github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
)

const (
	// maxNegotiations bounds how often a network switch may restart negotiation.
	maxNegotiations = 2

	reloadTimeout = 2 * time.Minute
)

// Connector owns the one live Session. Only the connector creates or clears it.
type Connector struct {
	provider interfaces.WalletProvider
	guard    *network.Guard
	factory  interfaces.RegistryFactory
	log      *slog.Logger
	now      func() time.Time

	// connectMu serializes connect and reload so a session is never built
	// from two negotiations at once.
	connectMu sync.Mutex

	mutex   sync.RWMutex
	session *interfaces.Session

	sessionFeed event.Feed
	scope       event.SubscriptionScope

	sub  event.Subscription
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewConnector creates a connector for provider. A nil provider makes every
// Connect fail with ErrProviderMissing.
func NewConnector(provider interfaces.WalletProvider, guard *network.Guard, factory interfaces.RegistryFactory, log *slog.Logger) *Connector {
	return &Connector{
		provider: provider,
		guard:    guard,
		factory:  factory,
		log:      rcommon.OrDefault(log),
		now:      time.Now,
	}
}

// Session returns the live session or nil.
func (c *Connector) Session() *interfaces.Session {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.session
}

// SubscribeSessions delivers session lifecycle events.
func (c *Connector) SubscribeSessions(ch chan<- interfaces.SessionEvent) event.Subscription {
	return c.scope.Track(c.sessionFeed.Subscribe(ch))
}

// Connect requests account authorization, moves the wallet to the supported
// network and binds the registry to the active account.
func (c *Connector) Connect(ctx context.Context) (*interfaces.Session, error) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	return c.connect(ctx, interfaces.SessionConnected)
}

func (c *Connector) connect(ctx context.Context, kind interfaces.SessionEventKind) (*interfaces.Session, error) {
	if c.provider == nil {
		return nil, interfaces.ErrProviderMissing
	}

	for attempt := 0; attempt < maxNegotiations; attempt++ {
		account, err := c.requestAccount(ctx)
		if err != nil {
			return nil, err
		}

		outcome, err := c.guard.EnsureSupportedNetwork(ctx, c.provider)
		if err != nil {
			return nil, err
		}
		if outcome.NeedsReload() {
			c.log.Info("Network changed during connect, reloading negotiated state")
			kind = interfaces.SessionReloaded
			continue
		}

		return c.establish(ctx, account, kind)
	}

	return nil, fmt.Errorf("%w: network did not settle after switching", interfaces.ErrUnsupportedNetwork)
}

func (c *Connector) requestAccount(ctx context.Context) (common.Address, error) {
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		if network.ErrorCode(err) == network.CodeUserRejected {
			return common.Address{}, fmt.Errorf("%w: %s", interfaces.ErrAuthorizationDenied, err.Error())
		}
		return common.Address{}, fmt.Errorf("%w: %s", interfaces.ErrProviderError, err.Error())
	}
	if len(accounts) == 0 {
		return common.Address{}, interfaces.ErrAuthorizationDenied
	}
	return accounts[0], nil
}

func (c *Connector) establish(ctx context.Context, account common.Address, kind interfaces.SessionEventKind) (*interfaces.Session, error) {
	state, err := c.guard.State(ctx, c.provider)
	if err != nil {
		return nil, err
	}
	if !c.guard.Supported(state) {
		return nil, interfaces.ErrUnsupportedNetwork
	}

	auth, err := c.provider.Signer(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrProviderError, err.Error())
	}

	reg, err := c.factory.RegistryFor(c.provider.Backend(), auth)
	if err != nil {
		return nil, fmt.Errorf("could not bind registry: %w", err)
	}

	session := &interfaces.Session{
		Account:     account,
		ChainID:     state.ChainID,
		ConnectedAt: c.now(),
		Registry:    reg,
	}

	c.mutex.Lock()
	c.session = session
	c.mutex.Unlock()

	c.log.Info("Wallet connected", "account", account, "chainID", state.ChainID)
	c.sessionFeed.Send(interfaces.SessionEvent{Kind: kind, Session: session})
	return session, nil
}

// Disconnect forgets the session locally. Wallets offer no revocation, so
// this never fails.
func (c *Connector) Disconnect() {
	c.clear()
}

func (c *Connector) clear() {
	c.mutex.Lock()
	had := c.session != nil
	c.session = nil
	c.mutex.Unlock()

	if had {
		c.log.Info("Wallet session cleared")
		c.sessionFeed.Send(interfaces.SessionEvent{Kind: interfaces.SessionCleared})
	}
}

// reload drops the session and negotiates a fresh one. If negotiation fails
// the session stays cleared.
func (c *Connector) reload(reason string) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.log.Info("Reloading wallet session", "reason", reason)
	c.clear()

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	if _, err := c.connect(ctx, interfaces.SessionReloaded); err != nil {
		c.log.Error("Wallet reconnect failed", "err", err)
	}
}

// Start subscribes to wallet notifications. Call Close to unsubscribe.
func (c *Connector) Start() {
	if c.provider == nil || c.sub != nil {
		return
	}

	events := make(chan interfaces.ProviderEvent, 16)
	c.sub = c.provider.SubscribeEvents(events)
	c.quit = make(chan struct{})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-events:
				c.handle(ev)
			case err := <-c.sub.Err():
				if err != nil {
					c.log.Error("Wallet subscription failed", "err", err)
				}
				return
			case <-c.quit:
				return
			}
		}
	}()
}

func (c *Connector) handle(ev interfaces.ProviderEvent) {
	session := c.Session()
	c.log.Debug("Wallet event", "kind", ev.Kind.String(), "chainID", ev.ChainID, "accounts", len(ev.Accounts))

	switch ev.Kind {
	case interfaces.ChainChanged:
		if session == nil || session.ChainID == ev.ChainID {
			return
		}
		c.reload("chain changed")

	case interfaces.AccountsChanged:
		if len(ev.Accounts) == 0 {
			c.clear()
			return
		}
		if session != nil && ev.Accounts[0] != session.Account {
			c.reload("account changed")
		}
	}
}

// Close unsubscribes from the wallet and ends session subscriptions.
func (c *Connector) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		close(c.quit)
		c.wg.Wait()
		c.sub = nil
	}
	c.scope.Close()
}
