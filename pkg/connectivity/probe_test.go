package connectivity

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startTestServer starts an in-process UDP DNS server on a random port.
// The provided handler is called for every incoming query. The server
// is shut down automatically when the test ends.
func startTestServer(t *testing.T, handler func(dns.ResponseWriter, *dns.Msg)) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(handler)}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func answerA(ip string) func(dns.ResponseWriter, *dns.Msg) {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP(ip),
		})
		_ = w.WriteMsg(m)
	}
}

func TestNew_EmptyServer(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty server")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("127.0.0.1:53")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, p.timeout)
	}
	if p.name != DefaultName {
		t.Errorf("expected default name %q, got %q", DefaultName, p.name)
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("127.0.0.1:53", WithTimeout(7*time.Second), WithName("example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.timeout != 7*time.Second {
		t.Errorf("expected timeout 7s, got %v", p.timeout)
	}
	if p.name != "example.com" {
		t.Errorf("expected name 'example.com', got %q", p.name)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New("127.0.0.1:53", WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := New("127.0.0.1:53", WithName("")); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestProbe_Success(t *testing.T) {
	addr := startTestServer(t, answerA("192.0.2.10"))
	p, err := New(addr, WithName("checkup.example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Probe(context.Background()); err != nil {
		t.Errorf("expected probe to pass, got %v", err)
	}
}

func TestProbe_NXDomain(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	p, _ := New(addr)
	if err := p.Probe(context.Background()); err == nil {
		t.Error("expected probe to fail on NXDOMAIN")
	}
}

func TestProbe_EmptyAnswer(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})
	p, _ := New(addr)
	if err := p.Probe(context.Background()); err == nil {
		t.Error("expected probe to fail without an A record")
	}
}

func TestProbe_Unreachable(t *testing.T) {
	// Bind and close a socket to get a port nobody answers on.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	p, _ := New(addr, WithTimeout(200*time.Millisecond))
	if err := p.Probe(context.Background()); err == nil {
		t.Error("expected probe to fail against a closed port")
	}
}
