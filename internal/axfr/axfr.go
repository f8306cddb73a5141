// Package axfr looks for nameservers that hand the whole zone to anyone
// who asks.
package axfr

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/workpool"
)

type Finding struct {
	Nameserver      string   `json:"nameserver"`
	Address         string   `json:"address"`
	LeakedHostnames []string `json:"leaked_hostnames"`
}

// Transferer requests a full zone transfer of zone from addr.
type Transferer interface {
	Transfer(ctx context.Context, zone, addr string) ([]dns.RR, error)
}

// DNSTransfer runs AXFR over TCP with miekg/dns.
type DNSTransfer struct {
	Timeout time.Duration
}

func (t *DNSTransfer) Transfer(ctx context.Context, zone, addr string) ([]dns.RR, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m := new(dns.Msg)
	m.SetAxfr(dns.Fqdn(zone))

	tr := &dns.Transfer{
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	envs, err := tr.In(m, addr)
	if err != nil {
		return nil, err
	}

	var (
		rrs     []dns.RR
		lastErr error
	)
	for env := range envs {
		if env.Error != nil {
			lastErr = env.Error
			continue
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			continue
		}
		rrs = append(rrs, env.RR...)
	}
	if len(rrs) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return rrs, nil
}

type Options struct {
	Servers []string
	// Port is where transfers are attempted on each nameserver address.
	Port    string
	Threads int
	Timeout time.Duration
	Log     logrus.FieldLogger
}

type Checker struct {
	q    dnsclient.Querier
	tr   Transferer
	opts Options
	log  logrus.FieldLogger
}

func NewChecker(q dnsclient.Querier, tr Transferer, opts Options) *Checker {
	if opts.Port == "" {
		opts.Port = "53"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Checker{q: q, tr: tr, opts: opts, log: opts.Log}
}

type target struct {
	ns   string
	addr string
}

// Check attempts a transfer from every address of every nameserver of
// domain. Refused or failed transfers produce no finding. Only a failed
// NS lookup is returned as an error.
func (c *Checker) Check(ctx context.Context, domain string) ([]Finding, error) {
	domain = strings.ToLower(dnsclient.TrimDot(domain))

	qctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	nameservers, err := dnsclient.LookupNS(qctx, c.q, domain, c.opts.Servers)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("zone transfer: %w", err)
	}

	var targets []target
	for _, ns := range nameservers {
		qctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		ips, _, err := dnsclient.LookupA(qctx, c.q, ns, c.opts.Servers)
		cancel()
		if err != nil {
			c.log.WithError(err).WithField("nameserver", ns).Debug("cannot resolve nameserver")
			continue
		}
		for _, ip := range ips {
			targets = append(targets, target{ns: ns, addr: net.JoinHostPort(ip, c.opts.Port)})
		}
	}

	findings := workpool.Collect(ctx, targets, c.opts.Threads,
		func(ctx context.Context, tg target) (Finding, bool) {
			log := c.log.WithFields(logrus.Fields{
				"nameserver": tg.ns,
				"address":    tg.addr,
			})
			rrs, err := c.tr.Transfer(ctx, domain, tg.addr)
			if err != nil {
				log.WithError(err).Debug("zone transfer refused")
				return Finding{}, false
			}
			names := Harvest(rrs, domain)
			if len(names) == 0 {
				return Finding{}, false
			}
			log.WithField("records", len(names)).Warn("zone transfer allowed")
			return Finding{Nameserver: tg.ns, Address: tg.addr, LeakedHostnames: names}, true
		})

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Nameserver != findings[j].Nameserver {
			return findings[i].Nameserver < findings[j].Nameserver
		}
		return findings[i].Address < findings[j].Address
	})
	return findings, nil
}

// Harvest collects the owner names below domain from a transferred
// zone. The apex and wildcard owners are left out.
func Harvest(rrs []dns.RR, domain string) []string {
	suffix := "." + domain
	seen := make(map[string]bool)
	var out []string
	for _, rr := range rrs {
		name := strings.ToLower(dnsclient.TrimDot(rr.Header().Name))
		if name == domain || !strings.HasSuffix(name, suffix) {
			continue
		}
		if strings.HasPrefix(name, "*.") || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
