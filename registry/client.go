package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrNoTransactOpts is returned when a transaction is attempted without a signer.
	ErrNoTransactOpts = errors.New("no authorized transactor available")

	// ErrHandleOverflow is returned for ciphertext handles wider than 256 bits.
	ErrHandleOverflow = errors.New("ciphertext handle exceeds 256 bits")

	// ErrEventNotFound is returned when a receipt carries no matching registry event.
	ErrEventNotFound = errors.New("registry event not found in receipt")
)

// ProofConvention selects how the validity proof reaches the contract, since
// registerDomain itself only takes the handle.
type ProofConvention int

const (
	// ProofAppended appends the proof bytes after the ABI-encoded arguments.
	ProofAppended ProofConvention = iota
	// ProofOmitted sends the bare registerDomain call.
	ProofOmitted
)

func (p ProofConvention) String() string {
	if p == ProofOmitted {
		return "omitted"
	}
	return "appended"
}

// DomainRegisteredEvent is the decoded DomainRegistered log.
type DomainRegisteredEvent struct {
	NameHash  [32]byte
	Owner     *big.Int
	Registrar common.Address
}

// Client implements interfaces.OnchainRegistry for the registry contract
// deployed at a fixed address.
type Client struct {
	contract   *bind.BoundContract
	backend    interfaces.ChainBackend
	address    common.Address
	auth       *bind.TransactOpts
	convention ProofConvention
}

var _ interfaces.OnchainRegistry = (*Client)(nil)

// NewClient binds the registry at address to backend. auth may be nil for
// read-only use; RegisterDomain then fails with ErrNoTransactOpts.
func NewClient(backend interfaces.ChainBackend, address common.Address, auth *bind.TransactOpts, convention ProofConvention) *Client {
	return &Client{
		contract:   bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		backend:    backend,
		address:    address,
		auth:       auth,
		convention: convention,
	}
}

func (c *Client) Address() common.Address {
	return c.address
}

// ResolveOwnerHandle returns the encrypted owner handle of name. A zero
// handle means the name is unregistered.
func (c *Client) ResolveOwnerHandle(ctx context.Context, name string) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "resolveOwnerHandle", name); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// NameOf returns the name registered under hash, empty when there is none.
func (c *Client) NameOf(ctx context.Context, hash common.Hash) (string, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "nameOf", hash); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// RegisterDomain signs and sends registerDomain(name, claim.Ciphertext),
// conveying claim.Proof according to the client's proof convention.
func (c *Client) RegisterDomain(ctx context.Context, name string, claim interfaces.EncryptedClaim) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	data, err := PackRegisterDomain(name, claim, c.convention)
	if err != nil {
		return nil, err
	}

	opts := *c.auth
	opts.Context = ctx
	return c.contract.RawTransact(&opts, data)
}

// WaitMined blocks until tx is included and returns its receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

// DomainRegistered decodes the first DomainRegistered event the registry
// emitted in receipt.
func (c *Client) DomainRegistered(receipt *types.Receipt) (*DomainRegisteredEvent, error) {
	id := parsedABI.Events["DomainRegistered"].ID
	for _, log := range receipt.Logs {
		if log.Address != c.address || len(log.Topics) == 0 || log.Topics[0] != id {
			continue
		}
		ev := new(DomainRegisteredEvent)
		if err := c.contract.UnpackLog(ev, "DomainRegistered", *log); err != nil {
			return nil, fmt.Errorf("malformed DomainRegistered log: %w", err)
		}
		return ev, nil
	}
	return nil, ErrEventNotFound
}

// PackRegisterDomain builds the calldata of a registerDomain call.
func PackRegisterDomain(name string, claim interfaces.EncryptedClaim, convention ProofConvention) ([]byte, error) {
	handle, err := HandleToUint256(claim.Ciphertext)
	if err != nil {
		return nil, err
	}
	data, err := parsedABI.Pack("registerDomain", name, handle.ToBig())
	if err != nil {
		return nil, err
	}
	if convention == ProofAppended {
		data = append(data, claim.Proof...)
	}
	return data, nil
}

// HandleToUint256 interprets a big-endian ciphertext handle as a uint256.
func HandleToUint256(handle []byte) (*uint256.Int, error) {
	v, overflow := uint256.FromBig(new(big.Int).SetBytes(handle))
	if overflow {
		return nil, fmt.Errorf("%w: %d bytes", ErrHandleOverflow, len(handle))
	}
	return v, nil
}

// NameHash is the keccak256 of name as the registry indexes it.
func NameHash(name string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	return common.BytesToHash(h.Sum(nil))
}

// Factory binds the registry at a fixed address to wallet sessions.
type Factory struct {
	address    common.Address
	convention ProofConvention
}

// NewFactory creates a factory for the registry deployed at address.
func NewFactory(address common.Address, convention ProofConvention) *Factory {
	return &Factory{address: address, convention: convention}
}

// RegistryFor returns a registry client signing with auth over backend.
func (f *Factory) RegistryFor(backend interfaces.ChainBackend, auth *bind.TransactOpts) (interfaces.OnchainRegistry, error) {
	if backend == nil {
		return nil, errors.New("wallet exposes no chain backend")
	}
	return NewClient(backend, f.address, auth, f.convention), nil
}
