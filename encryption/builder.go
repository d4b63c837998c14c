package encryption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	rcommon "github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultReadyTimeout = 15 * time.Second
)

var errNoNestedInput = errors.New("input exposes no internal encrypt operation")

// Builder produces encrypted ownership claims.
type Builder struct {
	slot      *Slot
	network   network.Config
	transport interfaces.WalletProvider
	log       *slog.Logger

	// PollInterval and ReadyTimeout bound the wait for the provider to load.
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// NewBuilder creates a builder taking its provider from slot. transport is
// handed to provider instances and may be nil for providers that do not need it.
func NewBuilder(slot *Slot, cfg network.Config, transport interfaces.WalletProvider, log *slog.Logger) *Builder {
	return &Builder{
		slot:         slot,
		network:      cfg,
		transport:    transport,
		log:          rcommon.OrDefault(log),
		PollInterval: DefaultPollInterval,
		ReadyTimeout: DefaultReadyTimeout,
	}
}

// WaitReady polls the slot until a provider is published. It fails with
// ErrEncryptionProviderTimeout once ReadyTimeout elapses.
func (b *Builder) WaitReady(ctx context.Context) (SDK, error) {
	if sdk := b.slot.Load(); sdk != nil {
		return sdk, nil
	}

	ticker := time.NewTicker(b.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(b.ReadyTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", interfaces.ErrEncryptionProviderTimeout, ctx.Err().Error())
		case <-timeout.C:
			return nil, fmt.Errorf("%w after %s", interfaces.ErrEncryptionProviderTimeout, b.ReadyTimeout)
		case <-ticker.C:
			if sdk := b.slot.Load(); sdk != nil {
				return sdk, nil
			}
		}
	}
}

// BuildClaim encrypts plaintext for an input session scoped to contract and
// submitter and normalizes the result into canonical bytes.
func (b *Builder) BuildClaim(ctx context.Context, plaintext, contract, submitter common.Address) (interfaces.EncryptedClaim, error) {
	sdk, err := b.WaitReady(ctx)
	if err != nil {
		return interfaces.EncryptedClaim{}, err
	}

	if err := sdk.InitSDK(ctx); err != nil {
		return interfaces.EncryptedClaim{}, fmt.Errorf("%w: initializing provider: %s", interfaces.ErrEncryptionFailed, err.Error())
	}
	instance, err := sdk.CreateInstance(ctx, InstanceConfig{
		ChainID:    b.network.ChainID,
		GatewayURL: b.network.GatewayURL,
		Transport:  b.transport,
	})
	if err != nil {
		return interfaces.EncryptedClaim{}, fmt.Errorf("%w: creating provider instance: %s", interfaces.ErrEncryptionFailed, err.Error())
	}

	input, err := newInput(instance, plaintext, contract, submitter)
	if err != nil {
		return interfaces.EncryptedClaim{}, err
	}

	result, err := b.encrypt(ctx, instance, input, plaintext, contract, submitter)
	if err != nil {
		return interfaces.EncryptedClaim{}, err
	}

	claim, shape, err := Normalize(result)
	if err != nil {
		b.log.Warn("Unusable encryption result", "err", err, "type", fmt.Sprintf("%T", result))
		return interfaces.EncryptedClaim{}, err
	}
	b.log.Debug("Encrypted owner claim", "shape", shape, "ciphertext", claim.Ciphertext, "proofLen", len(claim.Proof))
	return claim, nil
}

func newInput(instance Instance, plaintext, contract, submitter common.Address) (EncryptedInput, error) {
	input, err := instance.CreateEncryptedInput(contract, submitter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrEncryptionInputInvalid, err.Error())
	}
	if input == nil {
		return nil, fmt.Errorf("%w: provider returned no input", interfaces.ErrEncryptionInputInvalid)
	}
	adder, ok := input.(AddressAdder)
	if !ok {
		return nil, fmt.Errorf("%w: input cannot hold address values", interfaces.ErrEncryptionInputInvalid)
	}
	if err := adder.AddAddress(plaintext); err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrEncryptionInputInvalid, err.Error())
	}
	return input, nil
}

type encryptAttempt struct {
	name string
	run  func() (any, error)
}

// encrypt tries the ways providers have been seen to expose the encrypt
// operation, in order, and reports the first failure if none works.
func (b *Builder) encrypt(ctx context.Context, instance Instance, input EncryptedInput, plaintext, contract, submitter common.Address) (any, error) {
	attempts := []encryptAttempt{
		{"direct", func() (any, error) {
			return input.Encrypt(ctx)
		}},
		{"bound", func() (any, error) {
			return encryptBound(ctx, input)
		}},
		{"nested", func() (any, error) {
			nested, ok := input.(NestedInput)
			if !ok || nested.Internal() == nil {
				return nil, errNoNestedInput
			}
			return nested.Internal().Encrypt(ctx)
		}},
		{"recreated", func() (any, error) {
			fresh, err := newInput(instance, plaintext, contract, submitter)
			if err != nil {
				return nil, err
			}
			return encryptBound(ctx, fresh)
		}},
	}

	var first error
	for _, attempt := range attempts {
		result, err := attempt.run()
		if err == nil {
			if first != nil {
				b.log.Info("Encryption succeeded on fallback", "strategy", attempt.name)
			}
			return result, nil
		}
		b.log.Debug("Encryption attempt failed", "strategy", attempt.name, "err", err)
		if first == nil {
			first = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", interfaces.ErrEncryptionFailed, first.Error())
}

func encryptBound(ctx context.Context, input EncryptedInput) (any, error) {
	if binder, ok := input.(EncryptBinder); ok {
		if fn := binder.EncryptFunc(); fn != nil {
			return fn(ctx, input)
		}
	}
	return input.Encrypt(ctx)
}
