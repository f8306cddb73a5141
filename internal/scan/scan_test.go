package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bios000/scouter/internal/config"
	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/resolvers"
	"github.com/bios000/scouter/internal/sources"
)

// world answers every DNS question a scan asks, keyed by resolver
// address and host.
type world struct {
	deadResolvers map[string]bool
	wildcardIP    string
}

func (w *world) Query(
	_ context.Context,
	host string,
	qtype uint16,
	servers []string,
) (*dns.Msg, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if len(servers) > 0 && w.deadResolvers[servers[0]] {
		return nil, fmt.Errorf("%w: %s", dnsclient.ErrTimeout, servers[0])
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	a := func(ip string) {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(host), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP(ip),
		})
	}

	switch {
	case qtype == dns.TypeNS && host == "example.com":
		m.Answer = append(m.Answer, &dns.NS{
			Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 300},
			Ns:  "ns1.example.com.",
		})
	case host == "health.test":
		a("198.51.100.1")
	case host == "ns1.example.com":
		a("192.0.2.53")
	case w.wildcardIP != "" && strings.HasSuffix(host, ".example.com"):
		a(w.wildcardIP)
	default:
		return nil, fmt.Errorf("%w: %s", dnsclient.ErrNXDomain, host)
	}
	return m, nil
}

type listSource struct{ names []string }

func (s *listSource) Name() string                   { return "list" }
func (s *listSource) Capability() sources.Capability { return sources.CapabilityLocal }
func (s *listSource) Search(context.Context, string) ([]string, error) {
	return s.names, nil
}

type outputRunner struct {
	output string
	err    error
	input  []string
	resolv string
}

func (r *outputRunner) Run(_ context.Context, in, resolversPath, out string) error {
	body, _ := os.ReadFile(in)
	r.input = strings.Fields(string(body))
	resolv, _ := os.ReadFile(resolversPath)
	r.resolv = string(resolv)
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(out, []byte(r.output), 0o644)
}

// slowRunner finishes only after the scan deadline has passed.
type slowRunner struct {
	outputRunner
	delay time.Duration
}

func (r *slowRunner) Run(ctx context.Context, in, resolversPath, out string) error {
	time.Sleep(r.delay)
	return r.outputRunner.Run(ctx, in, resolversPath, out)
}

type staticProber map[string]int

func (p staticProber) Probe(_ context.Context, url string) (int, string, error) {
	status, ok := p[url]
	if !ok {
		return 0, "", errors.New("unreachable")
	}
	return status, "", nil
}

type leakyTransfer struct{}

func (leakyTransfer) Transfer(context.Context, string, string) ([]dns.RR, error) {
	rr, err := dns.NewRR("vpn.example.com. 300 IN A 10.8.0.1")
	if err != nil {
		return nil, err
	}
	return []dns.RR{rr}, nil
}

func massdnsLine(name string, answers ...string) string {
	var parts []string
	for _, a := range answers {
		typ, data, _ := strings.Cut(a, " ")
		parts = append(parts, fmt.Sprintf(`{"type":%q,"data":%q}`, typ, data))
	}
	return fmt.Sprintf(
		`{"name":"%s.","status":"NOERROR","data":{"answers":[%s]}}`,
		name,
		strings.Join(parts, ","),
	) + "\n"
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Resolvers = []config.Resolver{
		{Address: "10.0.0.1", Weight: 10},
		{Address: "10.0.0.2", Weight: 5},
		{Address: "10.0.0.3", Weight: 1},
	}
	cfg.HealthHost = "health.test"
	cfg.WorkDir = t.TempDir()
	cfg.DNSTimeout = 500 * time.Millisecond
	cfg.HealthTimeout = 500 * time.Millisecond
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	log, _ := test.NewNullLogger()
	runner := &outputRunner{output: massdnsLine("www.example.com", "A 192.0.2.10") +
		massdnsLine("api.example.com", "A 192.0.2.11", "A 192.0.2.12") +
		massdnsLine("docs.example.com", "CNAME gone.github.io.") +
		"garbage\n"}

	s := New(testConfig(t), Dependencies{
		Querier: &world{deadResolvers: map[string]bool{"10.0.0.3:53": true}},
		Sources: []sources.Source{&listSource{names: []string{
			"www.example.com", "api.example.com", "docs.example.com", "missing.example.com", "other.org",
		}}},
		Runner:     runner,
		Prober:     staticProber{"https://gone.github.io": 404},
		Transferer: leakyTransfer{},
		Log:        log,
	})

	r, err := s.Run(context.Background(), "Example.COM")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"api.example.com", "docs.example.com", "missing.example.com", "www.example.com",
	}, runner.input)
	assert.Equal(t, "10.0.0.1\n10.0.0.2\n", runner.resolv)

	assert.Nil(t, r.Wildcard)
	var names []string
	for _, h := range r.Hosts {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"api.example.com", "docs.example.com", "vpn.example.com", "www.example.com"}, names)

	require.Len(t, r.Takeovers, 1)
	assert.Equal(t, "docs.example.com", r.Takeovers[0].Hostname)
	assert.Equal(t, "GitHub Pages", r.Takeovers[0].Service)

	require.Len(t, r.ZoneTransfers, 1)
	assert.Equal(t, "192.0.2.53:53", r.ZoneTransfers[0].Address)
	assert.Equal(t, []string{"vpn.example.com"}, r.ZoneTransfers[0].LeakedHostnames)
}

func TestRunFiltersWildcardHosts(t *testing.T) {
	log, _ := test.NewNullLogger()
	runner := &outputRunner{output: massdnsLine("random1.example.com", "A 203.0.113.1") +
		massdnsLine("real.example.com", "A 192.0.2.20")}

	cfg := testConfig(t)
	cfg.ZoneTransfer = false
	cfg.Takeover = false
	s := New(cfg, Dependencies{
		Querier: &world{wildcardIP: "203.0.113.1"},
		Sources: []sources.Source{&listSource{names: []string{"random1.example.com", "real.example.com"}}},
		Runner:  runner,
		Log:     log,
	})

	r, err := s.Run(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, r.Wildcard)
	assert.Equal(t, []string{"203.0.113.1"}, r.Wildcard.IPs)
	require.Len(t, r.Hosts, 1)
	assert.Equal(t, "real.example.com", r.Hosts[0].Name)
}

func TestRunDeadlineDuringResolution(t *testing.T) {
	log, _ := test.NewNullLogger()
	runner := &slowRunner{
		outputRunner: outputRunner{output: massdnsLine("random1.example.com", "A 203.0.113.1") +
			massdnsLine("real.example.com", "A 192.0.2.20")},
		delay: 400 * time.Millisecond,
	}

	cfg := testConfig(t)
	cfg.ScanTimeout = 200 * time.Millisecond
	cfg.ZoneTransfer = false
	cfg.Takeover = false
	s := New(cfg, Dependencies{
		Querier: &world{wildcardIP: "203.0.113.1"},
		Sources: []sources.Source{&listSource{names: []string{"random1.example.com", "real.example.com"}}},
		Runner:  runner,
		Log:     log,
	})

	r, err := s.Run(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, r.Wildcard)
	assert.Equal(t, []string{"203.0.113.1"}, r.Wildcard.IPs)
	require.Len(t, r.Hosts, 1)
	assert.Equal(t, "real.example.com", r.Hosts[0].Name)
	assert.Equal(t, []string{"192.0.2.20"}, r.Hosts[0].IPs)
}

func TestRunResolutionFailureKeepsCandidates(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := testConfig(t)
	cfg.ZoneTransfer = false

	s := New(cfg, Dependencies{
		Querier: &world{},
		Sources: []sources.Source{&listSource{names: []string{"b.example.com", "a.example.com"}}},
		Runner:  &outputRunner{err: &massresolve.ResolutionError{Op: "launch", Err: errors.New("not found")}},
		Log:     log,
	})

	r, err := s.Run(context.Background(), "example.com")
	var rerr *massresolve.ResolutionError
	require.True(t, errors.As(err, &rerr))
	require.NotNil(t, r)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, r.Unresolved)
	assert.Empty(t, r.Hosts)
}

func TestRunWithoutResolvers(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(testConfig(t), Dependencies{
		Querier: &world{deadResolvers: map[string]bool{
			"10.0.0.1:53": true, "10.0.0.2:53": true, "10.0.0.3:53": true,
		}},
		Runner: &outputRunner{},
		Log:    log,
	})

	_, err := s.Run(context.Background(), "example.com")
	assert.ErrorIs(t, err, resolvers.ErrNoResolvers)
}

func TestRunRejectsEmptyDomain(t *testing.T) {
	s := New(testConfig(t), Dependencies{Querier: &world{}, Runner: &outputRunner{}})
	_, err := s.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
