// Package availability decides whether a candidate domain name is still free.
//
// The Prober debounces name changes and resolves the owner handle of the
// settled name through the session's registry. A zero handle means the name
// is available; a non-zero handle means it is taken. A lookup that fails is
// retried while the failure looks transient and is then treated as taken,
// so an unreachable registry never lets a registration through.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/metrics"
	"go.uber.org/atomic"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultRetries  = 2

	probeTimeout = 30 * time.Second
)

// SessionSource returns the live session, or nil when there is none.
type SessionSource func() *interfaces.Session

// Prober tracks the candidate name and its availability verdict.
type Prober struct {
	session SessionSource
	log     *slog.Logger
	metrics metrics.Recorder

	// Debounce is the input inactivity that must pass before a probe is issued.
	Debounce time.Duration
	// Retries bounds the extra lookups made after a transient failure.
	Retries uint64
	// RetryInterval is the initial wait between lookups.
	RetryInterval time.Duration

	generation atomic.Uint64

	mutex    sync.Mutex
	query    interfaces.DomainQuery
	timer    *time.Timer
	inflight context.CancelFunc

	sending sync.Mutex
	feed    event.Feed
}

func NewProber(session SessionSource, log *slog.Logger, recorder metrics.Recorder) *Prober {
	if session == nil {
		session = func() *interfaces.Session { return nil }
	}
	return &Prober{
		session:       session,
		log:           common.OrDefault(log),
		metrics:       metrics.OrNoop(recorder),
		Debounce:      DefaultDebounce,
		Retries:       DefaultRetries,
		RetryInterval: 100 * time.Millisecond,
	}
}

// subscribeQueries delivers a DomainQuery snapshot on every state change, in
// the order the changes were made. Slow subscribers stall the prober.
func (p *Prober) subscribeQueries(ch chan<- interfaces.DomainQuery) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Query returns the current candidate and verdict.
func (p *Prober) Query() interfaces.DomainQuery {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.query
}

// Verdict returns the settled verdict for name, unknown when name is not the
// current candidate or its probe has not finished.
func (p *Prober) Verdict(name string) interfaces.Verdict {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.query.Name != strings.TrimSpace(name) || p.query.Checking {
		return interfaces.VerdictUnknown
	}
	return p.query.Verdict
}

// SetName replaces the candidate name and schedules a probe once input has
// been idle for Debounce. Any scheduled or running probe is superseded.
func (p *Prober) SetName(name string) {
	name = strings.TrimSpace(name)
	p.reschedule(func(string) string { return name })
}

// Refresh probes the current candidate again, for example after the session changed.
func (p *Prober) Refresh() {
	p.reschedule(func(current string) string { return current })
}

func (p *Prober) reschedule(next func(current string) string) {
	p.mutex.Lock()
	name := next(p.query.Name)
	token := p.supersede(name)
	if name != "" && p.session() != nil {
		p.timer = time.AfterFunc(p.Debounce, func() { p.run(token, name) })
	}
	p.publishLocked()
}

// Reset clears the candidate name.
func (p *Prober) Reset() {
	p.SetName("")
}

// Probe resolves name immediately, makes it the candidate and returns the
// verdict it reached.
func (p *Prober) Probe(ctx context.Context, name string) interfaces.Verdict {
	name = strings.TrimSpace(name)

	p.mutex.Lock()
	token := p.supersede(name)
	p.query.Checking = name != ""
	p.publishLocked()

	if name == "" {
		return interfaces.VerdictUnknown
	}
	verdict := p.resolve(ctx, name)
	p.commit(token, verdict)
	return verdict
}

// Close cancels any scheduled or running probe.
func (p *Prober) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.supersede(p.query.Name)
}

// supersede starts a new generation for name. Callers hold the mutex.
func (p *Prober) supersede(name string) uint64 {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.inflight != nil {
		p.inflight()
		p.inflight = nil
	}
	token := p.generation.Inc()
	p.query = interfaces.DomainQuery{Name: name, Verdict: interfaces.VerdictUnknown, Token: token}
	return token
}

func (p *Prober) run(token uint64, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	p.mutex.Lock()
	if token != p.generation.Load() {
		p.mutex.Unlock()
		return
	}
	p.inflight = cancel
	p.query.Checking = true
	p.publishLocked()

	p.commit(token, p.resolve(ctx, name))
}

// commit publishes verdict unless a newer probe has been issued since token.
func (p *Prober) commit(token uint64, verdict interfaces.Verdict) bool {
	p.mutex.Lock()
	if token != p.generation.Load() {
		p.mutex.Unlock()
		p.log.Debug("Discarding stale availability result", "token", token, "verdict", verdict)
		return false
	}
	p.inflight = nil
	p.query.Verdict = verdict
	p.query.Checking = false
	p.publishLocked()
	return true
}

// publishLocked sends the current query to subscribers and releases p.mutex.
// The send lock is taken before p.mutex is released, so snapshots leave in
// the order their changes were made.
func (p *Prober) publishLocked() {
	snapshot := p.query
	p.sending.Lock()
	defer p.sending.Unlock()
	p.mutex.Unlock()

	p.feed.Send(snapshot)
}

func (p *Prober) resolve(ctx context.Context, name string) interfaces.Verdict {
	session := p.session()
	if session == nil || session.Registry == nil {
		return interfaces.VerdictUnknown
	}

	start := time.Now()
	handle, err := p.lookup(ctx, session.Registry, name)

	verdict, outcome := interfaces.VerdictTaken, "taken"
	switch {
	case err != nil:
		outcome = "ambiguous"
		p.log.Warn("Treating name as taken", "name", name, "err", fmt.Errorf("%w: %w", interfaces.ErrAvailabilityCheckAmbiguous, err))
	case handle == nil || handle.Sign() == 0:
		verdict, outcome = interfaces.VerdictAvailable, "available"
	}

	p.metrics.IncCounter(metrics.EventProbe, metrics.Outcome(outcome))
	p.metrics.ObserveLatency(metrics.EventProbe, time.Since(start), metrics.Outcome(outcome))
	return verdict
}

func (p *Prober) lookup(ctx context.Context, reg interfaces.OnchainRegistry, name string) (*big.Int, error) {
	var handle *big.Int
	op := func() error {
		h, err := reg.ResolveOwnerHandle(ctx, name)
		if err != nil {
			if isAnswer(err) {
				return backoff.Permanent(err)
			}
			p.log.Debug("Owner lookup failed, retrying", "name", name, "err", err)
			return err
		}
		handle = h
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryInterval
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.Retries), ctx))
	return handle, err
}

// isAnswer reports whether err came back from the chain rather than from
// the way there. Repeating such a lookup would not change the outcome.
func isAnswer(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) ||
		errors.Is(err, bind.ErrNoCode) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
