// Package gateway is an HTTP client for the encryption gateway. It
// implements the encryption provider contract of package encryption: the
// gateway publishes its key material at /v1/keyurl and turns plaintext
// inputs into ciphertext handles with a validity proof at /v1/input-proof.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hashicorp/go-retryablehttp"
	rcommon "github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/encryption"
)

const (
	keyURLPath     = "/v1/keyurl"
	inputProofPath = "/v1/input-proof"

	maxErrorBody = 512
	// maxResponseSize bounds gateway response bodies (1MB).
	maxResponseSize = 1 << 20
)

var (
	ErrNotInitialized = errors.New("gateway SDK not initialized")
	ErrNoValues       = errors.New("encrypted input holds no values")
	ErrResponseTooBig = errors.New("gateway response too large")
)

// Config configures the gateway client.
type Config struct {
	URL          string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns the client settings used against url.
func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Client talks to one encryption gateway.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     *slog.Logger

	mutex   sync.RWMutex
	keyInfo json.RawMessage
}

var _ encryption.SDK = (*Client)(nil)

func NewClient(cfg Config, log *slog.Logger) *Client {
	log = rcommon.OrDefault(log)

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = log

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    rc,
		log:     log,
	}
}

// Ping checks the gateway serves key material.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+keyURLPath)
	return err
}

// InitSDK fetches the gateway's key material.
func (c *Client) InitSDK(ctx context.Context) error {
	body, err := c.get(ctx, c.baseURL+keyURLPath)
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("gateway returned malformed key material")
	}

	c.mutex.Lock()
	c.keyInfo = body
	c.mutex.Unlock()
	return nil
}

// KeyInfo returns the key material fetched by InitSDK.
func (c *Client) KeyInfo() json.RawMessage {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.keyInfo
}

// CreateInstance binds the client to a chain. A non-empty cfg.GatewayURL
// overrides the client's own endpoint for encryption requests.
func (c *Client) CreateInstance(ctx context.Context, cfg encryption.InstanceConfig) (encryption.Instance, error) {
	if c.KeyInfo() == nil {
		return nil, ErrNotInitialized
	}
	url := c.baseURL
	if cfg.GatewayURL != "" {
		url = strings.TrimRight(cfg.GatewayURL, "/")
	}
	return &Instance{client: c, url: url, chainID: cfg.ChainID}, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode/100 == 2 && len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooBig, maxResponseSize)
	}
	if resp.StatusCode/100 != 2 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Instance is a gateway client bound to one chain.
type Instance struct {
	client  *Client
	url     string
	chainID uint64
}

func (i *Instance) CreateEncryptedInput(contract, account common.Address) (encryption.EncryptedInput, error) {
	if contract == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	return &Input{instance: i, contract: contract, account: account}, nil
}

type inputValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type inputProofRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	ContractChainID hexutil.Uint64 `json:"contractChainId"`
	Values          []inputValue   `json:"values"`
}

// Input collects plaintext values for one contract call.
type Input struct {
	instance *Instance
	contract common.Address
	account  common.Address

	mutex  sync.Mutex
	values []inputValue
}

func (in *Input) AddAddress(addr common.Address) error {
	in.mutex.Lock()
	defer in.mutex.Unlock()
	in.values = append(in.values, inputValue{Type: "address", Value: addr.Hex()})
	return nil
}

// Encrypt submits the collected values and returns the gateway's answer
// decoded into plain JSON values.
func (in *Input) Encrypt(ctx context.Context) (any, error) {
	in.mutex.Lock()
	values := append([]inputValue(nil), in.values...)
	in.mutex.Unlock()
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	payload, err := json.Marshal(inputProofRequest{
		ContractAddress: in.contract,
		UserAddress:     in.account,
		ContractChainID: hexutil.Uint64(in.instance.chainID),
		Values:          values,
	})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, in.instance.url+inputProofPath, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := in.instance.client.do(req)
	if err != nil {
		return nil, err
	}

	var result any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}
	if envelope, ok := result.(map[string]any); ok {
		if inner, ok := envelope["response"]; ok {
			return inner, nil
		}
	}
	return result, nil
}
