// Package resolvers builds the health-checked set of recursive resolvers
// every later DNS stage draws from.
package resolvers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/workpool"
)

// ErrNoResolvers means no candidate survived the health check. Nothing
// downstream can run without a resolver, so callers treat it as fatal.
var ErrNoResolvers = errors.New("no usable dns resolvers")

type Candidate struct {
	Address string
	Weight  int
}

// DefaultCandidates are public resolvers with their selection weights.
var DefaultCandidates = []Candidate{
	{Address: "8.8.8.8", Weight: 10},
	{Address: "8.8.4.4", Weight: 8},
	{Address: "208.67.222.222", Weight: 8},
	{Address: "208.67.220.220", Weight: 6},
	{Address: "114.114.114.114", Weight: 10},
	{Address: "114.114.115.115", Weight: 6},
	{Address: "119.29.29.29", Weight: 10},
	{Address: "182.254.116.116", Weight: 8},
}

// Pool is read-only once built.
type Pool struct {
	servers []*DNSServer

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPool(servers []*DNSServer, rng *rand.Rand) *Pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pool{servers: servers, rng: rng}
}

func (p *Pool) Len() int { return len(p.servers) }

func (p *Pool) Servers() []*DNSServer {
	out := make([]*DNSServer, len(p.servers))
	copy(out, p.servers)
	return out
}

func (p *Pool) Addresses() []string {
	out := make([]string, 0, len(p.servers))
	for _, s := range p.servers {
		out = append(out, s.Address)
	}
	return out
}

// Pick returns n distinct servers drawn at random, favouring heavier
// weights. n larger than the pool returns every server.
func (p *Pool) Pick(n int) []*DNSServer {
	if n > len(p.servers) {
		n = len(p.servers)
	}

	left := p.Servers()
	out := make([]*DNSServer, 0, n)

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(out) < n {
		total := 0
		for _, s := range left {
			total += s.Weight
		}
		r := p.rng.Intn(total)
		for i, s := range left {
			r -= s.Weight
			if r < 0 {
				out = append(out, s)
				left = append(left[:i], left[i+1:]...)
				break
			}
		}
	}
	return out
}

// WriteFile stores one resolver per line, the format massdns reads.
// Servers on the default port are written without it.
func (p *Pool) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("resolver file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, s := range p.servers {
		line := s.Address
		if host, port, err := net.SplitHostPort(s.Address); err == nil && port == "53" {
			line = host
		}
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("resolver file: %w", err)
	}
	return nil
}

// Checker probes candidate resolvers with an A lookup of a host that is
// known to resolve.
type Checker struct {
	Querier    dnsclient.Querier
	HealthHost string
	Timeout    time.Duration
	Threads    int
	Log        logrus.FieldLogger
	Rand       *rand.Rand
}

func (c *Checker) Build(ctx context.Context, candidates []Candidate) (*Pool, error) {
	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	host := c.HealthHost
	if host == "" {
		host = "www.baidu.com"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	seen := make(map[string]bool)
	var uniq []Candidate
	for _, cand := range candidates {
		addr, err := dnsclient.HostPort(cand.Address)
		if err != nil {
			log.WithField("resolver", cand.Address).Warn("invalid resolver address")
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		uniq = append(uniq, Candidate{Address: addr, Weight: cand.Weight})
	}

	alive := workpool.Collect(ctx, uniq, c.Threads,
		func(ctx context.Context, cand Candidate) (*DNSServer, bool) {
			qctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			srv := NewDNSServer(cand.Address, cand.Weight)
			start := time.Now()
			_, _, err := dnsclient.LookupA(qctx, c.Querier, host, []string{cand.Address})
			srv.Record(time.Since(start), err)
			if err != nil {
				log.WithError(err).
					WithField("resolver", cand.Address).
					Debug("resolver failed health check")
				return nil, false
			}
			return srv, true
		})

	if len(alive) == 0 {
		return nil, ErrNoResolvers
	}

	sort.Slice(alive, func(i, j int) bool {
		if alive[i].Weight != alive[j].Weight {
			return alive[i].Weight > alive[j].Weight
		}
		return alive[i].Address < alive[j].Address
	})
	log.WithField("count", len(alive)).Info("resolver pool ready")
	return NewPool(alive, c.Rand), nil
}
