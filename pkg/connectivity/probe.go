// Package connectivity decides whether the breach check backend is online by
// resolving a well-known name against a DNS server. A check that cannot
// reach the breach data is reported as offline instead of as a result.
package connectivity

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultTimeout is the default DNS query timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultName is the name queried when none is configured.
	DefaultName = "passwordsleakcheck-pa.googleapis.com"
)

// Prober reports whether the network needed for a breach check is usable.
type Prober interface {
	Probe(ctx context.Context) error
}

// DNSProbe implements Prober with a single A query to a specific server.
type DNSProbe struct {
	server  string // host:port of the DNS server
	name    string
	timeout time.Duration
	client  *dns.Client
}

// Option is a functional option for configuring a DNSProbe.
type Option func(*DNSProbe) error

// WithTimeout sets the DNS query timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *DNSProbe) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithName sets the name that must resolve for the probe to pass.
func WithName(name string) Option {
	return func(p *DNSProbe) error {
		if name == "" {
			return fmt.Errorf("name must not be empty")
		}
		p.name = name
		return nil
	}
}

// New creates a DNSProbe targeting the given server.
func New(server string, opts ...Option) (*DNSProbe, error) {
	if server == "" {
		return nil, fmt.Errorf("connectivity: server must not be empty")
	}

	p := &DNSProbe{
		server:  server,
		name:    DefaultName,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("connectivity: %w", err)
		}
	}

	p.client = &dns.Client{
		Timeout: p.timeout,
	}
	return p, nil
}

// Probe succeeds when the server answers the query with NOERROR and at
// least one A record.
func (p *DNSProbe) Probe(ctx context.Context) error {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(p.name), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return fmt.Errorf("connectivity: resolve %s via %s: %w", p.name, p.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("connectivity: resolve %s: rcode %s", p.name, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.A); ok {
			return nil
		}
	}
	return fmt.Errorf("connectivity: resolve %s: no A record in answer", p.name)
}
