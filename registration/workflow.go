package registration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/encrypted-name-registry/availability"
	"github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/encryption"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/ledger"
	"github.com/ruteri/encrypted-name-registry/metrics"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/ruteri/encrypted-name-registry/wallet"
)

// Config wires a Workflow.
type Config struct {
	Network  network.Config
	Provider interfaces.WalletProvider
	Factory  interfaces.RegistryFactory
	Slot     *encryption.Slot
	Log      *slog.Logger
	Metrics  metrics.Recorder

	// ProbeDelay overrides the availability debounce when set.
	ProbeDelay time.Duration
}

// Workflow is the in-process API offered to a presentation layer: one
// wallet connector, the candidate name prober, the ledger and the registrar,
// kept consistent with each other.
type Workflow struct {
	Connector *wallet.Connector
	Prober    *availability.Prober
	Builder   *encryption.Builder
	Ledger    *ledger.Ledger
	Registrar *Registrar

	log     *slog.Logger
	metrics metrics.Recorder

	sub  event.Subscription
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewWorkflow(cfg Config) *Workflow {
	log := common.OrDefault(cfg.Log)
	recorder := metrics.OrNoop(cfg.Metrics)
	slot := cfg.Slot
	if slot == nil {
		slot = encryption.NewSlot()
	}

	guard := network.NewGuard(cfg.Network, log)
	connector := wallet.NewConnector(cfg.Provider, guard, cfg.Factory, log)

	prober := availability.NewProber(connector.Session, log, recorder)
	if cfg.ProbeDelay > 0 {
		prober.Debounce = cfg.ProbeDelay
	}

	builder := encryption.NewBuilder(slot, cfg.Network, cfg.Provider, log)
	l := ledger.New()

	submitter := NewSubmitter(connector.Session, prober, l, log, recorder)
	submitter.OnSuccess = func(string) { prober.Reset() }

	return &Workflow{
		Connector: connector,
		Prober:    prober,
		Builder:   builder,
		Ledger:    l,
		Registrar: NewRegistrar(submitter, builder),
		log:       log,
		metrics:   recorder,
	}
}

// Start follows wallet notifications and re-probes the candidate name
// whenever the session changes.
func (w *Workflow) Start() {
	if w.sub != nil {
		return
	}
	w.Connector.Start()

	events := make(chan interfaces.SessionEvent, 16)
	w.sub = w.Connector.SubscribeSessions(events)
	w.quit = make(chan struct{})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev := <-events:
				w.log.Debug("Session changed, refreshing availability", "kind", ev.Kind)
				w.Prober.Refresh()
			case <-w.sub.Err():
				return
			case <-w.quit:
				return
			}
		}
	}()
}

// Close stops all background work.
func (w *Workflow) Close() {
	if w.sub != nil {
		w.sub.Unsubscribe()
		close(w.quit)
		w.wg.Wait()
		w.sub = nil
	}
	w.Prober.Close()
	w.Connector.Close()
}

// Connect negotiates a wallet session.
func (w *Workflow) Connect(ctx context.Context) (*interfaces.Session, error) {
	start := time.Now()
	session, err := w.Connector.Connect(ctx)

	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	w.metrics.IncCounter(metrics.EventConnect, metrics.Outcome(outcome))
	w.metrics.ObserveLatency(metrics.EventConnect, time.Since(start), metrics.Outcome(outcome))
	return session, err
}

// Disconnect clears the session.
func (w *Workflow) Disconnect() {
	w.Connector.Disconnect()
}

// Register runs a full registration of name.
func (w *Workflow) Register(ctx context.Context, name string) (interfaces.RegistrationRecord, error) {
	return w.Registrar.Register(ctx, name)
}

// CanSubmit mirrors the state of a submit control for name.
func (w *Workflow) CanSubmit(name string) bool {
	return w.Registrar.CanSubmit(name)
}
