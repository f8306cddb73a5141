// Package dnstest starts in-process miekg/dns servers for tests.
package dnstest

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// StartUDP serves handler on a random loopback UDP port and returns its
// address. The server stops when the test ends.
func StartUDP(t testing.TB, handler dns.Handler) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	start(t, srv)
	return pc.LocalAddr().String()
}

// StartTCP is StartUDP over TCP, as zone transfers require.
func StartTCP(t testing.TB, handler dns.Handler) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	srv := &dns.Server{Listener: ln, Handler: handler}
	start(t, srv)
	return ln.Addr().String()
}

func start(t testing.TB, srv *dns.Server) {
	t.Helper()

	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }
	go func() {
		_ = srv.ActivateAndServe()
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})
}

// Zone answers A, CNAME and NS questions from static maps; anything
// else is NXDOMAIN. Names are fully qualified.
type Zone struct {
	A     map[string][]string
	CNAME map[string]string
	NS    map[string][]string
	TTL   uint32
}

func (z *Zone) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)

	q := r.Question[0]
	ttl := z.TTL
	if ttl == 0 {
		ttl = 60
	}
	hdr := func(rtype uint16) dns.RR_Header {
		return dns.RR_Header{
			Name:   q.Name,
			Rrtype: rtype,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		}
	}

	found := false
	switch q.Qtype {
	case dns.TypeA:
		if target, ok := z.CNAME[q.Name]; ok {
			found = true
			m.Answer = append(m.Answer, &dns.CNAME{
				Hdr:    hdr(dns.TypeCNAME),
				Target: target,
			})
		}
		if ips, ok := z.A[q.Name]; ok {
			found = true
			for _, ip := range ips {
				m.Answer = append(m.Answer, &dns.A{
					Hdr: hdr(dns.TypeA),
					A:   net.ParseIP(ip),
				})
			}
		}
	case dns.TypeNS:
		if names, ok := z.NS[q.Name]; ok {
			found = true
			for _, ns := range names {
				m.Answer = append(m.Answer, &dns.NS{
					Hdr: hdr(dns.TypeNS),
					Ns:  ns,
				})
			}
		}
	}
	if !found {
		if _, exists := z.A[q.Name]; !exists {
			m.Rcode = dns.RcodeNameError
		}
	}
	_ = w.WriteMsg(m)
}

// Silent never replies, so clients run into their timeout.
func Silent() dns.Handler {
	return dns.HandlerFunc(func(dns.ResponseWriter, *dns.Msg) {})
}
