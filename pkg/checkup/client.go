package checkup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/remote"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 10 * time.Second

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 1 << 20

// Client talks to a checkup service over HTTP. It implements remote.Client.
type Client struct {
	baseURL    string
	account    string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logrus.Logger
}

var _ remote.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithAccount sets the signed-in account sent with account-scope requests.
func WithAccount(account string) Option {
	return func(c *Client) error {
		c.account = strings.TrimSpace(account)
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithLimiter throttles outgoing requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) error {
		if l == nil {
			return fmt.Errorf("limiter must not be nil")
		}
		c.limiter = l
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.logger = l
		return nil
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("checkup: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("checkup: base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("checkup: %w", err)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// HasUsableAccount reports whether requests for scope can be made. The
// local scope is always usable; the account scope needs an account.
func (c *Client) HasUsableAccount(scope check.Scope) bool {
	if scope == check.ScopeAccount {
		return c.account != ""
	}
	return scope.Valid()
}

// RunCheckup asks the service to check every credential in scope.
func (c *Client) RunCheckup(ctx context.Context, scope check.Scope, onResult func(int), onError func(error)) {
	go func() {
		var resp BreachedResponse
		if err := c.do(ctx, http.MethodPost, scope, CheckupPath(scope), &resp); err != nil {
			onError(err)
			return
		}
		onResult(resp.Breached)
	}()
}

// GetBreachedCount fetches the breached count of the last checkup.
func (c *Client) GetBreachedCount(ctx context.Context, scope check.Scope, onResult func(int), onError func(error)) {
	go func() {
		var resp BreachedResponse
		if err := c.do(ctx, http.MethodGet, scope, BreachedPath(scope), &resp); err != nil {
			onError(err)
			return
		}
		onResult(resp.Breached)
	}()
}

// GetSavedCount fetches the number of saved credentials in scope.
func (c *Client) GetSavedCount(ctx context.Context, scope check.Scope, onResult func(int), onError func(error)) {
	go func() {
		var resp CountResponse
		if err := c.do(ctx, http.MethodGet, scope, CountPath(scope), &resp); err != nil {
			onError(err)
			return
		}
		onResult(resp.Total)
	}()
}

func (c *Client) do(ctx context.Context, method string, scope check.Scope, path string, out any) error {
	if !c.HasUsableAccount(scope) {
		return check.ErrSignedOut
	}

	requestID := uuid.NewString()
	log := c.logger.WithFields(logrus.Fields{
		"scope":      scope.String(),
		"request_id": requestID,
	})

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("checkup: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("checkup: failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if scope == check.ScopeAccount {
		req.Header.Set(HeaderAccount, c.account)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checkup: request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	log.Debugf("%s %s -> %d in %v", method, path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("checkup: failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil {
			apiErr.Message = e.Error
			if e.RequestID != "" {
				apiErr.RequestID = e.RequestID
			}
		}
		log.Warnf("Checkup request failed: %v", apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("checkup: could not parse response from %s: %w", path, err)
	}
	return nil
}
