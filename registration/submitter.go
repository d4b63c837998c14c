// Package registration runs the registration workflow: it gates attempts on
// the session and the availability verdict, builds the encrypted claim,
// submits it to the registry and reconciles the ledger with the outcome.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/ledger"
	"github.com/ruteri/encrypted-name-registry/metrics"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
)

// weiExponent scales wei to the native currency unit.
const weiExponent = -18

// DefaultConfirmTimeout bounds how long an accepted transaction is followed.
const DefaultConfirmTimeout = 10 * time.Minute

// SessionSource returns the live session, or nil when there is none.
type SessionSource func() *interfaces.Session

// Availability supplies verdicts for candidate names.
type Availability interface {
	Verdict(name string) interfaces.Verdict
	Probe(ctx context.Context, name string) interfaces.Verdict
}

// Submitter sends encrypted claims to the registry. At most one attempt is
// in flight at a time, and every attempt it records in the ledger ends
// success or failed before Submit returns.
type Submitter struct {
	sessions     SessionSource
	availability Availability
	ledger       *ledger.Ledger
	log          *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time

	inflight atomic.Bool

	// ConfirmTimeout bounds confirmation tracking once the wallet has
	// accepted a transaction. The caller's cancellation no longer applies
	// at that point.
	ConfirmTimeout time.Duration

	// OnSuccess runs after a registration is confirmed, with the registered name.
	OnSuccess func(name string)
}

func NewSubmitter(sessions SessionSource, availability Availability, l *ledger.Ledger, log *slog.Logger, recorder metrics.Recorder) *Submitter {
	return &Submitter{
		sessions:     sessions,
		availability: availability,
		ledger:       l,
		log:          common.OrDefault(log),
		metrics:      metrics.OrNoop(recorder),
		now:          time.Now,

		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// InFlight reports whether a submission is running.
func (s *Submitter) InFlight() bool {
	return s.inflight.Load()
}

// CanSubmit reports whether an attempt for name would pass the guards
// without probing.
func (s *Submitter) CanSubmit(name string) bool {
	session := s.sessions()
	name = strings.TrimSpace(name)
	return session != nil && session.Registry != nil &&
		name != "" &&
		s.availability.Verdict(name) != interfaces.VerdictTaken &&
		!s.inflight.Load()
}

// Submit registers name with an already built claim.
func (s *Submitter) Submit(ctx context.Context, name string, claim interfaces.EncryptedClaim) (interfaces.RegistrationRecord, error) {
	session, name, err := s.begin(ctx, name)
	if err != nil {
		return interfaces.RegistrationRecord{}, err
	}
	defer s.end()

	attempt := s.open(name)
	return s.send(ctx, session, attempt, claim)
}

// begin claims the in-flight slot and checks the preconditions of an attempt.
func (s *Submitter) begin(ctx context.Context, name string) (*interfaces.Session, string, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return nil, "", interfaces.ErrSubmissionInFlight
	}

	session, name, err := s.check(ctx, name)
	if err != nil {
		s.inflight.Store(false)
		s.log.Info("Registration refused", "name", name, "err", err)
		return nil, name, err
	}
	return session, name, nil
}

func (s *Submitter) end() {
	s.inflight.Store(false)
}

func (s *Submitter) check(ctx context.Context, name string) (*interfaces.Session, string, error) {
	session := s.sessions()
	if session == nil || session.Registry == nil {
		return nil, name, interfaces.ErrNoSession
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, name, interfaces.ErrEmptyName
	}

	verdict := s.availability.Verdict(name)
	if verdict == interfaces.VerdictUnknown {
		verdict = s.availability.Probe(ctx, name)
	}
	if verdict == interfaces.VerdictTaken {
		return nil, name, fmt.Errorf("%w: %s", interfaces.ErrDomainTaken, name)
	}
	return session, name, nil
}

// attempt is a pending ledger record and the time it was opened.
type attempt struct {
	record interfaces.RegistrationRecord
	start  time.Time
}

// open appends the pending record of a new attempt.
func (s *Submitter) open(name string) attempt {
	record := interfaces.NewPendingRecord(name, s.now())
	s.ledger.Append(record)
	return attempt{record: record, start: time.Now()}
}

// send submits claim and follows the transaction to a terminal status.
func (s *Submitter) send(ctx context.Context, session *interfaces.Session, a attempt, claim interfaces.EncryptedClaim) (interfaces.RegistrationRecord, error) {
	name := a.record.Name

	tx, err := session.Registry.RegisterDomain(ctx, name, claim)
	if err != nil {
		if rejected(err) {
			err = fmt.Errorf("%w: %s", interfaces.ErrTransactionRejected, err.Error())
		}
		return s.abort(a, err)
	}

	ref := tx.Hash().Hex()
	s.ledger.UpdateLatestPendingByName(name, interfaces.WithReference(ref))
	s.log.Info("Registration submitted", "name", name, "tx", ref)

	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout())
	defer cancel()

	receipt, err := session.Registry.WaitMined(confirmCtx, tx)
	if err != nil {
		return s.conclude(a, ref, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return s.conclude(a, ref, fmt.Errorf("%w: %s", interfaces.ErrTransactionReverted, ref))
	}

	fee := Fee(receipt)
	s.ledger.UpdateByReference(ref, interfaces.Succeeded(fee))
	s.observe(a, "success")
	s.log.Info("Domain registered", "name", name, "tx", ref, "block", receipt.BlockNumber, "fee", fee)

	if s.OnSuccess != nil {
		s.OnSuccess(name)
	}
	return s.record(a), nil
}

func (s *Submitter) confirmTimeout() time.Duration {
	if s.ConfirmTimeout <= 0 {
		return DefaultConfirmTimeout
	}
	return s.ConfirmTimeout
}

// abort fails an attempt that never reached the chain.
func (s *Submitter) abort(a attempt, err error) (interfaces.RegistrationRecord, error) {
	s.ledger.UpdateLatestPendingByName(a.record.Name, interfaces.Failed(err))
	s.observe(a, outcome(err))
	s.log.Warn("Registration failed", "name", a.record.Name, "err", err)
	return s.record(a), err
}

// conclude fails an attempt whose transaction was accepted as ref.
func (s *Submitter) conclude(a attempt, ref string, err error) (interfaces.RegistrationRecord, error) {
	s.ledger.UpdateByReference(ref, interfaces.Failed(err))
	s.observe(a, outcome(err))
	s.log.Warn("Registration failed", "name", a.record.Name, "tx", ref, "err", err)
	return s.record(a), err
}

func (s *Submitter) record(a attempt) interfaces.RegistrationRecord {
	if r, ok := s.ledger.Get(a.record.ID); ok {
		return r
	}
	return a.record
}

func (s *Submitter) observe(a attempt, outcome string) {
	s.metrics.IncCounter(metrics.EventRegistration, metrics.Outcome(outcome))
	s.metrics.ObserveLatency(metrics.EventRegistration, time.Since(a.start), metrics.Outcome(outcome))
}

func rejected(err error) bool {
	return network.ErrorCode(err) == network.CodeUserRejected || errors.Is(err, bind.ErrNotAuthorized)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrTransactionRejected):
		return "rejected"
	case errors.Is(err, interfaces.ErrTransactionReverted):
		return "reverted"
	case errors.Is(err, interfaces.ErrEncryptionProviderTimeout),
		errors.Is(err, interfaces.ErrEncryptionInputInvalid),
		errors.Is(err, interfaces.ErrEncryptionFailed),
		errors.Is(err, interfaces.ErrEncryptionResultEmpty),
		errors.Is(err, interfaces.ErrEncryptionResultUnusable):
		return "encryption_failed"
	default:
		return "failed"
	}
}

// Fee is the native currency paid for a mined transaction, or nil when
// the receipt does not report a gas price.
func Fee(receipt *types.Receipt) *decimal.Decimal {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return nil
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	fee := decimal.NewFromBigInt(wei, weiExponent)
	return &fee
}
