// Package client is the Go client of the installd HTTP API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/registration"
	"github.com/tierone/installd/pkg/server"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/types"
)

// DefaultTimeout bounds requests other than phase runs.
const DefaultTimeout = 30 * time.Second

// APIError is returned when the service rejects a request.
type APIError struct {
	StatusCode int
	types.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.ErrorResponse.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Subsystem != "" {
		return fmt.Sprintf("%s (%s): %s", e.Phase, e.Subsystem, msg)
	}
	return msg
}

// Busy reports whether the request was rejected because the service was
// running a phase.
func (e *APIError) Busy() bool {
	return e.StatusCode == http.StatusConflict && e.ErrorResponse.Error == "busy"
}

// Client talks to one installd service.
type Client struct {
	base string
	http *resty.Client

	// phases sends phase runs, without timeout.
	phases *resty.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the timeout of queries. Phase runs are not bounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.http.SetHeader("User-Agent", ua)
		c.phases.SetHeader("User-Agent", ua)
	}
}

// New creates a client for the service at baseURL, e.g.
// http://127.0.0.1:9380.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimSuffix(baseURL, "/")
	c := &Client{
		base: base,
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
		phases: resty.New().
			SetBaseURL(base).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var apiErr types.ErrorResponse
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), ErrorResponse: apiErr}
	}
	return nil
}

// Manager returns the state machine.
func (c *Client) Manager(ctx context.Context) (types.ManagerState, error) {
	var state types.ManagerState
	err := c.do(ctx, http.MethodGet, "/api/manager", nil, &state)
	return state, err
}

// Probe runs the config phase and waits for it to finish.
func (c *Client) Probe(ctx context.Context) (types.ManagerState, error) {
	return c.runPhase(ctx, "/api/manager/probe")
}

// Install runs the install phase and waits for it to finish.
func (c *Client) Install(ctx context.Context) (types.ManagerState, error) {
	return c.runPhase(ctx, "/api/manager/install")
}

func (c *Client) runPhase(ctx context.Context, path string) (types.ManagerState, error) {
	var state types.ManagerState
	var apiErr types.ErrorResponse
	resp, err := c.phases.R().
		SetContext(ctx).
		SetResult(&state).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return state, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return state, &APIError{StatusCode: resp.StatusCode(), ErrorResponse: apiErr}
	}
	return state, nil
}

// Products lists the configured products.
func (c *Client) Products(ctx context.Context) ([]software.Product, error) {
	var products []software.Product
	err := c.do(ctx, http.MethodGet, "/api/software/products", nil, &products)
	return products, err
}

// SelectedProduct returns the selected product. ok is false when none is
// selected.
func (c *Client) SelectedProduct(ctx context.Context) (name string, ok bool, err error) {
	var resp server.ProductResponse
	if err := c.do(ctx, http.MethodGet, "/api/software/product", nil, &resp); err != nil {
		return "", false, err
	}
	return resp.Product, resp.Selected, nil
}

// SelectProduct selects the product to install.
func (c *Client) SelectProduct(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/api/software/product", server.ProductRequest{Product: name}, nil)
}

// Repositories lists the repositories with their probe results.
func (c *Client) Repositories(ctx context.Context) ([]software.Repository, error) {
	var repos []software.Repository
	err := c.do(ctx, http.MethodGet, "/api/software/repositories", nil, &repos)
	return repos, err
}

// Proposal returns the software proposal.
func (c *Client) Proposal(ctx context.Context) (software.Proposal, error) {
	var p software.Proposal
	err := c.do(ctx, http.MethodGet, "/api/software/proposal", nil, &p)
	return p, err
}

// Connections lists the network connection profiles.
func (c *Client) Connections(ctx context.Context) ([]network.Connection, error) {
	var conns []network.Connection
	err := c.do(ctx, http.MethodGet, "/api/network/connections", nil, &conns)
	return conns, err
}

// AddConnection adds and activates a connection profile.
func (c *Client) AddConnection(ctx context.Context, conn network.Connection) (network.Connection, error) {
	var added network.Connection
	err := c.do(ctx, http.MethodPost, "/api/network/connections", conn, &added)
	return added, err
}

// DeleteConnection removes a connection profile.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/network/connections/"+id, nil, nil)
}

// Hostname returns the hostname of the installation system.
func (c *Client) Hostname(ctx context.Context) (string, error) {
	var resp server.HostnameResponse
	err := c.do(ctx, http.MethodGet, "/api/network/hostname", nil, &resp)
	return resp.Hostname, err
}

// Registration returns the registration state.
func (c *Client) Registration(ctx context.Context) (registration.State, error) {
	var st registration.State
	err := c.do(ctx, http.MethodGet, "/api/registration", nil, &st)
	return st, err
}

// Register registers the system with code.
func (c *Client) Register(ctx context.Context, code, email string) (registration.State, error) {
	var st registration.State
	err := c.do(ctx, http.MethodPost, "/api/registration", server.RegisterRequest{Code: code, Email: email}, &st)
	return st, err
}

// Deregister removes the registration.
func (c *Client) Deregister(ctx context.Context) (registration.State, error) {
	var st registration.State
	err := c.do(ctx, http.MethodDelete, "/api/registration", nil, &st)
	return st, err
}
