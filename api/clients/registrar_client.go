package clients

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
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/encrypted-name-registry/api"
	"github.com/ruteri/encrypted-name-registry/common"
)

// RequestError is a non-2xx answer from the bridge.
type RequestError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("registrar returned %d (%s): %s", e.StatusCode, e.Response.Kind, e.Response.Message)
}

// RegistrarClient talks to a registration HTTP bridge.
type RegistrarClient struct {
	// ServerAddr is the base URL of the bridge
	ServerAddr string

	reads *retryablehttp.Client
}

func NewRegistrarClient(serverAddr string, log *slog.Logger) *RegistrarClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = common.OrDefault(log)

	return &RegistrarClient{
		ServerAddr: strings.TrimRight(serverAddr, "/"),
		reads:      rc,
	}
}

// Session returns the bridge's wallet session.
func (c *RegistrarClient) Session(ctx context.Context) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	return &resp, c.get(ctx, "/api/wallet/session", &resp)
}

// Connect asks the bridge to negotiate a wallet session.
func (c *RegistrarClient) Connect(ctx context.Context) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	return &resp, c.send(ctx, http.MethodPost, "/api/wallet/connect", nil, &resp)
}

// Disconnect clears the bridge's wallet session.
func (c *RegistrarClient) Disconnect(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/wallet/disconnect", nil, nil)
}

// SetDomain replaces the candidate name. The verdict settles asynchronously.
func (c *RegistrarClient) SetDomain(ctx context.Context, name string) (*api.DomainResponse, error) {
	var resp api.DomainResponse
	return &resp, c.send(ctx, http.MethodPut, "/api/domain", api.DomainRequest{Name: name}, &resp)
}

// Domain returns the candidate name and its verdict.
func (c *RegistrarClient) Domain(ctx context.Context) (*api.DomainResponse, error) {
	var resp api.DomainResponse
	return &resp, c.get(ctx, "/api/domain", &resp)
}

// Check probes name and waits for the verdict.
func (c *RegistrarClient) Check(ctx context.Context, name string) (*api.DomainResponse, error) {
	var resp api.DomainResponse
	return &resp, c.send(ctx, http.MethodPost, "/api/domain/check", api.DomainRequest{Name: name}, &resp)
}

// Register runs a registration of name. The returned response carries the
// ledger record even when err is a RequestError.
func (c *RegistrarClient) Register(ctx context.Context, name string) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.send(ctx, http.MethodPost, "/api/domain/register", api.RegisterRequest{Name: name}, &resp)
	return &resp, err
}

// Ledger returns all registration attempts.
func (c *RegistrarClient) Ledger(ctx context.Context) (*api.LedgerResponse, error) {
	var resp api.LedgerResponse
	return &resp, c.get(ctx, "/api/ledger", &resp)
}

func (c *RegistrarClient) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.ServerAddr+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.reads.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	return decode(resp, out)
}

func (c *RegistrarClient) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.reads.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	return decode(resp, out)
}

// decode reads a bridge answer into out. Error answers are decoded into out
// as well when they carry one, so partial results survive.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("could not parse response: %w", err)
		}
		return nil
	}

	reqErr := &RequestError{StatusCode: resp.StatusCode}
	var wrapped struct {
		Error *api.ErrorResponse `json:"error"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Error != nil {
		reqErr.Response = *wrapped.Error
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
	} else if json.Unmarshal(data, &reqErr.Response) != nil || reqErr.Response.Kind == "" {
		reqErr.Response = api.ErrorResponse{Kind: api.KindInternal, Message: strings.TrimSpace(string(data))}
	}
	return reqErr
}

// IsKind reports whether err is a RequestError of kind.
func IsKind(err error, kind string) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Response.Kind == kind
}
