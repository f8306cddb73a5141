// Package dnsclient wraps miekg/dns with server rotation, pacing and the
// small set of lookups the scan pipeline needs.
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/ratelimit"
)

var (
	ErrNXDomain = errors.New("nxdomain")
	ErrNoAnswer = errors.New("no answer")
	ErrTimeout  = errors.New("timeout")
	ErrNoServer = errors.New("no dns server")
)

// Querier sends a single question to the first server that answers.
type Querier interface {
	Query(
		ctx context.Context,
		host string,
		qtype uint16,
		servers []string,
	) (*dns.Msg, error)
}

type Options struct {
	Timeout time.Duration
	Servers []string
	// Rate caps queries per second across the client; zero disables pacing.
	Rate int
}

type Client struct {
	dns     *dns.Client
	servers []string
	limiter ratelimit.Limiter
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if opts.Rate > 0 {
		limiter = ratelimit.New(opts.Rate)
	}
	return &Client{
		dns: &dns.Client{
			Net:     "udp",
			Timeout: opts.Timeout,
		},
		servers: opts.Servers,
		limiter: limiter,
	}
}

func (c *Client) Servers() []string {
	out := make([]string, len(c.servers))
	copy(out, c.servers)
	return out
}

// Query tries servers in order. An NXDOMAIN answer is final; other
// non-success rcodes and transport errors move on to the next server.
func (c *Client) Query(
	ctx context.Context,
	host string,
	qtype uint16,
	servers []string,
) (*dns.Msg, error) {
	if len(servers) == 0 {
		servers = c.servers
	}
	if len(servers) == 0 {
		return nil, ErrNoServer
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, srv := range servers {
		if ctx.Err() != nil {
			return nil, classify(ctx.Err(), srv)
		}
		c.limiter.Take()

		resp, _, err := c.dns.ExchangeContext(ctx, msg, srv)
		if err == nil && resp != nil {
			switch resp.Rcode {
			case dns.RcodeSuccess:
				return resp, nil
			case dns.RcodeNameError:
				return resp, fmt.Errorf("%w: %s", ErrNXDomain, host)
			}
			lastErr = fmt.Errorf(
				"%s: rcode %s",
				srv,
				dns.RcodeToString[resp.Rcode],
			)
			continue
		}
		lastErr = classify(err, srv)
	}
	if lastErr == nil {
		lastErr = errors.New("no response")
	}
	return nil, lastErr
}

func classify(err error, srv string) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, srv, err)
	}
	return fmt.Errorf("%s: %w", srv, err)
}

// IsTimeout reports whether err is a query that ran out of time, either
// from the client deadline or the caller's context.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// LookupA returns the sorted A addresses for host and the TTL of the A
// rrset. A NOERROR answer without A records yields ErrNoAnswer.
func LookupA(
	ctx context.Context,
	q Querier,
	host string,
	servers []string,
) ([]string, uint32, error) {
	msg, err := q.Query(ctx, host, dns.TypeA, servers)
	if err != nil {
		return nil, 0, err
	}

	var (
		ips []string
		ttl uint32
	)
	seen := make(map[string]bool)
	for _, rr := range msg.Answer {
		rec, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip := rec.A.String()
		if len(ips) == 0 {
			ttl = rec.Hdr.Ttl
		}
		if seen[ip] {
			continue
		}
		seen[ip] = true
		ips = append(ips, ip)
	}
	if len(ips) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoAnswer, host)
	}
	sort.Strings(ips)
	return ips, ttl, nil
}

// LookupNS returns the nameserver hostnames of domain without the
// trailing dot.
func LookupNS(
	ctx context.Context,
	q Querier,
	domain string,
	servers []string,
) ([]string, error) {
	msg, err := q.Query(ctx, domain, dns.TypeNS, servers)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, rr := range msg.Answer {
		if rec, ok := rr.(*dns.NS); ok {
			out = append(out, TrimDot(strings.ToLower(rec.Ns)))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s NS", ErrNoAnswer, domain)
	}
	sort.Strings(out)
	return out, nil
}

func TrimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
