// Package provision creates or updates an external widget user and obtains
// the session token the widget is initialized with.
//
// Each Provision call issues exactly one HTTP request: no retries, no caching.
package provision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf16"
)

// DefaultEndpoint is the provisioning endpoint used when none is configured.
const DefaultEndpoint = "https://api.zogo.com/sdk/user"

// maxErrorBody bounds how much of a failed response is kept for reporting.
const maxErrorBody = 4096

var (
	// ErrMissingUserID is returned when Provision is called without a user id.
	ErrMissingUserID = errors.New("user id is required for provisioning")
	// ErrMissingCredentials is returned by NewClient without an API id and secret.
	ErrMissingCredentials = errors.New("provisioning API id and secret must be provided")
)

// NetworkError wraps a transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "provisioning request failed: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError reports a non-success or unreadable response.
type ServiceError struct {
	Status int
	Body   string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provisioning service error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("provisioning service error (status %d): %s", e.Status, e.Body)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Provisioner is what the session flow needs from this package.
type Provisioner interface {
	Provision(ctx context.Context, userID, locale string) (Result, error)
}

// Result is the decoded success response.
type Result struct {
	Token string                 `json:"token"`
	Raw   map[string]interface{} `json:"-"`
}

// UserInfo is the user record sent to the provisioning service.
type UserInfo struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	IsTestUser  bool   `json:"is_test_user"`
	Locale      string `json:"locale,omitempty"`
}

// Request is the provisioning request body.
type Request struct {
	Auth     Auth     `json:"auth"`
	UserInfo UserInfo `json:"user_info"`
}

// Auth selects the credential type the service returns.
type Auth struct {
	Type string `json:"type"`
}

// Opts holds configuration options for the provisioning client.
type Opts struct {
	Endpoint   string
	APIID      string
	APISecret  string
	Email      string
	TestUsers  bool
	HTTPClient *http.Client
}

// Option defines a configuration option for the provisioning client.
type Option func(*Opts)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithCredentials sets the Basic credential pair.
func WithCredentials(id, secret string) Option {
	return func(o *Opts) {
		o.APIID = id
		o.APISecret = secret
	}
}

// WithEmail sets the email attached to every provisioned user.
func WithEmail(email string) Option {
	return func(o *Opts) { o.Email = email }
}

// WithTestUsers marks provisioned users as test users.
func WithTestUsers(test bool) Option {
	return func(o *Opts) { o.TestUsers = test }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client calls the provisioning endpoint.
type Client struct {
	endpoint   string
	credential string
	email      string
	testUsers  bool
	http       *http.Client
}

// NewClient builds a Client from options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIID == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	slog.Debug("provision.NewClient: configured", "endpoint", cfg.Endpoint, "email_set", cfg.Email != "", "test_users", cfg.TestUsers)
	return &Client{
		endpoint:   cfg.Endpoint,
		credential: base64.StdEncoding.EncodeToString([]byte(cfg.APIID + ":" + cfg.APISecret)),
		email:      cfg.Email,
		testUsers:  cfg.TestUsers,
		http:       cfg.HTTPClient,
	}, nil
}

// SplitName splits a user id into first and last name at ceil(n/2), where n
// counts UTF-16 code units as the provisioning service's browser clients do.
// A surrogate pair cut in half leaves U+FFFD on each side.
func SplitName(userID string) (first, last string) {
	units := utf16.Encode([]rune(userID))
	mid := (len(units) + 1) / 2
	return string(utf16.Decode(units[:mid])), string(utf16.Decode(units[mid:]))
}

// BuildRequest assembles the request body for userID. locale is sent only when non-empty.
func (c *Client) BuildRequest(userID, locale string) Request {
	first, last := SplitName(userID)
	return Request{
		Auth: Auth{Type: "token"},
		UserInfo: UserInfo{
			ExternalID:  userID,
			DisplayName: userID,
			FirstName:   first,
			LastName:    last,
			Email:       c.email,
			IsTestUser:  c.testUsers,
			Locale:      locale,
		},
	}
}

// Provision creates or updates the user and returns the decoded response.
// A success response without a token is not an error; Result.Token is empty.
func (c *Client) Provision(ctx context.Context, userID, locale string) (Result, error) {
	if userID == "" {
		return Result{}, ErrMissingUserID
	}
	body, err := json.Marshal(c.BuildRequest(userID, locale))
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode provisioning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build provisioning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.credential)

	slog.Debug("Client.Provision: making API request", "endpoint", c.endpoint, "external_id", userID, "locale", locale)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Client.Provision: error making API request", "error", err, "external_id", userID)
		return Result{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		slog.Error("Client.Provision: API request failed", "status", resp.StatusCode, "body", snippet)
		return Result{}, &ServiceError{Status: resp.StatusCode, Body: snippet}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Error("Client.Provision: undecodable success response", "error", err, "status", resp.StatusCode)
		return Result{}, &ServiceError{Status: resp.StatusCode, Err: err}
	}
	result := Result{Raw: decoded}
	if tok, ok := decoded["token"].(string); ok {
		result.Token = tok
	}
	slog.Info("Client.Provision: user created/updated", "external_id", userID, "token_present", result.Token != "")
	return result, nil
}
