// Package pwned looks up passwords in a Pwned Passwords range API.
//
// Only the first five hex characters of a password's SHA-1 digest leave
// the process; the service answers with every known suffix under that
// prefix and the match is made locally.
package pwned

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the public range API.
	DefaultURL = "https://api.pwnedpasswords.com/range/"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "breachcheck/1.0"

	prefixLen = 5
)

// ErrRateLimited is returned when the service answers 429.
var ErrRateLimited = errors.New("pwned: rate limited")

// Client queries the range API. Responses are cached per prefix for the
// lifetime of the Client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.Mutex
	cache map[string]map[string]int
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithURL sets the range endpoint; the hash prefix is appended to it.
func WithURL(u string) Option {
	return func(c *Client) error {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("url must be http or https, got %q", u)
		}
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		if ua == "" {
			return fmt.Errorf("user agent must not be empty")
		}
		c.userAgent = ua
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

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   DefaultURL,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		logger:    logrus.StandardLogger(),
		cache:     make(map[string]map[string]int),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("pwned: %w", err)
		}
	}
	c.httpClient = &http.Client{Timeout: c.timeout}
	return c, nil
}

// Lookup returns how many times password appears in known breaches.
func (c *Client) Lookup(ctx context.Context, password string) (int, error) {
	if password == "" {
		return 0, fmt.Errorf("pwned: password must not be empty")
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLen], digest[prefixLen:]

	suffixes, err := c.rangeFor(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return suffixes[suffix], nil
}

func (c *Client) rangeFor(ctx context.Context, prefix string) (map[string]int, error) {
	c.mu.Lock()
	cached, ok := c.cache[prefix]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pwned: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("pwned: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Add-Padding", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pwned: request for prefix %s failed: %w", prefix, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("pwned: unexpected status %d for prefix %s", resp.StatusCode, prefix)
	}

	suffixes := make(map[string]int)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		suffix, countStr, found := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !found {
			continue
		}
		count, err := strconv.Atoi(countStr)
		if err != nil {
			c.logger.Warnf("Skipping malformed range line for prefix %s: %q", prefix, scanner.Text())
			continue
		}
		// Padding entries carry a zero count.
		if count > 0 {
			suffixes[strings.ToUpper(suffix)] = count
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pwned: error reading response for prefix %s: %w", prefix, err)
	}

	c.mu.Lock()
	c.cache[prefix] = suffixes
	c.mu.Unlock()
	c.logger.Debugf("Fetched %d suffixes for prefix %s", len(suffixes), prefix)
	return suffixes, nil
}
