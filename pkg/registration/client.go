package registration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Credentials identify an announced system.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AnnounceRequest is the body of a system announcement.
type AnnounceRequest struct {
	Hostname     string `json:"hostname"`
	DistroTarget string `json:"distro_target"`
	Email        string `json:"email,omitempty"`
}

// ActivateRequest is the body of a product activation.
type ActivateRequest struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Arch       string `json:"arch"`
	Token      string `json:"token"`
	Email      string `json:"email,omitempty"`
}

// ServerError is returned when the subscription service rejects a request.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registration server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("registration server returned %d: %s", e.StatusCode, e.Message)
}

type apiError struct {
	Error          string `json:"error"`
	LocalizedError string `json:"localized_error"`
}

// Client talks to the subscription service API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, userAgent string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json,application/vnd.scc.suse.com.v4+json").
		SetHeader("User-Agent", userAgent)
	return &Client{http: client}
}

// Announce registers the system with a registration code and returns the
// system credentials.
func (c *Client) Announce(ctx context.Context, code string, req AnnounceRequest) (Credentials, error) {
	var creds Credentials
	var apiErr apiError
	resp, err := c.http.R().SetContext(ctx).
		SetHeader("Authorization", "Token token="+code).
		SetBody(req).
		SetResult(&creds).
		SetError(&apiErr).
		Post("/connect/subscriptions/systems")
	if err != nil {
		return Credentials{}, fmt.Errorf("announcing system: %w", err)
	}
	if err := classify(resp, apiErr); err != nil {
		return Credentials{}, fmt.Errorf("announcing system: %w", err)
	}
	if creds.Login == "" {
		return Credentials{}, fmt.Errorf("announcing system: empty credentials in response")
	}
	return creds, nil
}

// Activate enables a product for an announced system.
func (c *Client) Activate(ctx context.Context, creds Credentials, req ActivateRequest) (Service, error) {
	var service Service
	var apiErr apiError
	resp, err := c.http.R().SetContext(ctx).
		SetBasicAuth(creds.Login, creds.Password).
		SetBody(req).
		SetResult(&service).
		SetError(&apiErr).
		Post("/connect/systems/products")
	if err != nil {
		return Service{}, fmt.Errorf("activating %s: %w", req.Identifier, err)
	}
	if err := classify(resp, apiErr); err != nil {
		return Service{}, fmt.Errorf("activating %s: %w", req.Identifier, err)
	}
	return service, nil
}

// Deregister removes the system from the service.
func (c *Client) Deregister(ctx context.Context, creds Credentials) error {
	var apiErr apiError
	resp, err := c.http.R().SetContext(ctx).
		SetBasicAuth(creds.Login, creds.Password).
		SetError(&apiErr).
		Delete("/connect/systems")
	if err != nil {
		return fmt.Errorf("deregistering system: %w", err)
	}
	if err := classify(resp, apiErr); err != nil {
		return fmt.Errorf("deregistering system: %w", err)
	}
	return nil
}

func classify(resp *resty.Response, apiErr apiError) error {
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.LocalizedError
	if msg == "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &ServerError{StatusCode: resp.StatusCode(), Message: msg}
}
