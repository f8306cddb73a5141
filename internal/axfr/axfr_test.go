package axfr

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/dnstest"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func zoneRecords(t *testing.T) []dns.RR {
	soa := mustRR(t, "example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600")
	return []dns.RR{
		soa,
		mustRR(t, "example.com. 3600 IN NS ns1.example.com."),
		mustRR(t, "www.example.com. 3600 IN A 192.0.2.10"),
		mustRR(t, "Mail.Example.com. 3600 IN A 192.0.2.11"),
		mustRR(t, "*.dev.example.com. 3600 IN A 192.0.2.12"),
		mustRR(t, "ftp.example.com. 3600 IN CNAME www.example.com."),
		mustRR(t, "www.example.com. 3600 IN TXT \"v=1\""),
		soa,
	}
}

func axfrHandler(t *testing.T, allow bool) dns.HandlerFunc {
	records := zoneRecords(t)
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if !allow || r.Question[0].Qtype != dns.TypeAXFR {
			m.Rcode = dns.RcodeRefused
			_ = w.WriteMsg(m)
			return
		}
		m.Answer = records
		_ = w.WriteMsg(m)
	}
}

func TestHarvest(t *testing.T) {
	got := Harvest(zoneRecords(t), "example.com")
	assert.Equal(t, []string{"ftp.example.com", "mail.example.com", "www.example.com"}, got)
}

func TestDNSTransfer(t *testing.T) {
	addr := dnstest.StartTCP(t, axfrHandler(t, true))

	tr := &DNSTransfer{Timeout: 2 * time.Second}
	rrs, err := tr.Transfer(context.Background(), "example.com", addr)
	require.NoError(t, err)
	assert.Len(t, rrs, 8)
}

func TestDNSTransferRefused(t *testing.T) {
	addr := dnstest.StartTCP(t, axfrHandler(t, false))

	tr := &DNSTransfer{Timeout: 2 * time.Second}
	_, err := tr.Transfer(context.Background(), "example.com", addr)
	assert.Error(t, err)
}

func TestCheckFindsOpenTransfer(t *testing.T) {
	open := dnstest.StartTCP(t, axfrHandler(t, true))
	_, port, err := net.SplitHostPort(open)
	require.NoError(t, err)

	resolver := dnstest.StartUDP(t, &dnstest.Zone{
		NS: map[string][]string{"example.com.": {"ns1.example.com.", "ns2.example.com."}},
		A: map[string][]string{
			"ns1.example.com.": {"127.0.0.1"},
			"example.com.":     {"192.0.2.1"},
		},
	})
	log, _ := test.NewNullLogger()

	c := NewChecker(
		dnsclient.New(dnsclient.Options{Timeout: time.Second, Servers: []string{resolver}}),
		&DNSTransfer{Timeout: 2 * time.Second},
		Options{Port: port, Threads: 2, Log: log},
	)
	got, err := c.Check(context.Background(), "Example.com.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ns1.example.com", got[0].Nameserver)
	assert.Equal(t, net.JoinHostPort("127.0.0.1", port), got[0].Address)
	assert.Equal(t, []string{"ftp.example.com", "mail.example.com", "www.example.com"}, got[0].LeakedHostnames)
}

type refusingTransfer struct{ calls int }

func (r *refusingTransfer) Transfer(context.Context, string, string) ([]dns.RR, error) {
	r.calls++
	return nil, errors.New("dns: bad xfr rcode: 5")
}

func TestCheckRefusalIsNotAnError(t *testing.T) {
	resolver := dnstest.StartUDP(t, &dnstest.Zone{
		NS: map[string][]string{"example.com.": {"ns1.example.com."}},
		A: map[string][]string{
			"ns1.example.com.": {"192.0.2.53"},
			"example.com.":     {"192.0.2.1"},
		},
	})
	tr := &refusingTransfer{}
	log, _ := test.NewNullLogger()
	c := NewChecker(
		dnsclient.New(dnsclient.Options{Timeout: time.Second, Servers: []string{resolver}}),
		tr,
		Options{Log: log},
	)

	got, err := c.Check(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, tr.calls)
}

func TestCheckNSFailure(t *testing.T) {
	resolver := dnstest.StartUDP(t, &dnstest.Zone{})
	c := NewChecker(
		dnsclient.New(dnsclient.Options{Timeout: time.Second, Servers: []string{resolver}}),
		&refusingTransfer{},
		Options{},
	)
	_, err := c.Check(context.Background(), "example.com")
	assert.ErrorIs(t, err, dnsclient.ErrNXDomain)
}
