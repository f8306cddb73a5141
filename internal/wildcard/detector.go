// Package wildcard recognises catch-all zones and strips hosts that only
// exist because of them.
package wildcard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/resolvers"
	"github.com/bios000/scouter/internal/workpool"
)

const (
	DefaultProbes    = 5
	DefaultAgreement = 4
	DefaultRetries   = 2
	startResolvers   = 2
	labelAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Signature is the answer a wildcard zone gives for names that do not
// exist. It is built once per run and never changed afterwards.
type Signature struct {
	IPs []string `json:"ips"`
	TTL uint32   `json:"ttl"`
}

func (s *Signature) String() string {
	return fmt.Sprintf("%s ttl=%d", strings.Join(s.IPs, ","), s.TTL)
}

// Covers reports whether ips is a non-empty subset of the signature.
func (s *Signature) Covers(ips []string) bool {
	if s == nil || len(ips) == 0 {
		return false
	}
	set := make(map[string]bool, len(s.IPs))
	for _, ip := range s.IPs {
		set[ip] = true
	}
	for _, ip := range ips {
		if !set[ip] {
			return false
		}
	}
	return true
}

type Options struct {
	Probes    int
	Agreement int
	Retries   int
	Timeout   time.Duration
	Log       logrus.FieldLogger
	Rand      *rand.Rand
}

type Detector struct {
	q    dnsclient.Querier
	pool *resolvers.Pool
	opts Options
	log  logrus.FieldLogger

	rngMu sync.Mutex
	rng   *rand.Rand

	once sync.Once
	sig  *Signature
	err  error
}

func NewDetector(q dnsclient.Querier, pool *resolvers.Pool, opts Options) *Detector {
	if opts.Agreement < 1 {
		opts.Agreement = DefaultAgreement
	}
	if opts.Probes < opts.Agreement {
		opts.Probes = max(DefaultProbes, opts.Agreement)
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Detector{
		q:    q,
		pool: pool,
		opts: opts,
		log:  opts.Log,
		rng:  opts.Rand,
	}
}

// Detect probes domain with random labels. The first call does the work;
// later calls return the same signature, nil when the zone is not a
// wildcard.
func (d *Detector) Detect(ctx context.Context, domain string) (*Signature, error) {
	d.once.Do(func() {
		d.sig, d.err = d.detect(ctx, domain)
	})
	return d.sig, d.err
}

// Signature returns the cached result of Detect.
func (d *Detector) Signature() *Signature {
	return d.sig
}

func (d *Detector) detect(ctx context.Context, domain string) (*Signature, error) {
	if d.pool == nil || d.pool.Len() == 0 {
		return nil, resolvers.ErrNoResolvers
	}

	hosts := make([]string, d.opts.Probes)
	for i := range hosts {
		hosts[i] = d.randomLabel() + "." + domain
	}

	answers := workpool.Collect(ctx, hosts, len(hosts),
		func(ctx context.Context, host string) (Signature, bool) {
			return d.probe(ctx, host)
		})

	counts := make(map[string]int)
	for _, ans := range answers {
		key := ans.String()
		counts[key]++
		if counts[key] >= d.opts.Agreement {
			sig := ans
			d.log.WithFields(logrus.Fields{
				"domain": domain,
				"ips":    strings.Join(sig.IPs, ","),
				"ttl":    sig.TTL,
			}).Warn("wildcard dns detected")
			return &sig, nil
		}
	}
	d.log.WithField("domain", domain).Debug("no wildcard dns")
	return nil, nil
}

type outcome int

const (
	outcomeAnswer outcome = iota
	outcomeEmpty
	outcomeTimeout
	outcomeFailed
)

// probeState walks one probe through its resolvers: two to start, then
// one fresh resolver per retry after a timeout.
type probeState struct {
	order   []*resolvers.DNSServer
	next    int
	active  []*resolvers.DNSServer
	retries int
}

func (p *probeState) rotate(limit int) bool {
	if p.retries >= limit || p.next >= len(p.order) {
		return false
	}
	p.active = p.order[p.next : p.next+1]
	p.next++
	p.retries++
	return true
}

func (d *Detector) probe(ctx context.Context, host string) (Signature, bool) {
	order := d.pool.Pick(d.pool.Len())
	n := min(startResolvers, len(order))
	st := &probeState{order: order, next: n, active: order[:n]}

	log := d.log.WithField("host", host)
	for {
		sig, res := d.attempt(ctx, host, st.active)
		switch res {
		case outcomeAnswer:
			return sig, true
		case outcomeTimeout:
			if st.rotate(d.opts.Retries) {
				log.WithField("retry", st.retries).Debug("wildcard probe timed out, rotating resolver")
				continue
			}
			log.Debug("wildcard probe gave up after timeouts")
			return Signature{}, false
		default:
			return Signature{}, false
		}
	}
}

// attempt asks each active resolver in turn. The first definite answer
// wins; the attempt times out only when every resolver timed out.
func (d *Detector) attempt(
	ctx context.Context,
	host string,
	active []*resolvers.DNSServer,
) (Signature, outcome) {
	timeouts := 0
	for _, srv := range active {
		qctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		start := time.Now()
		ips, ttl, err := dnsclient.LookupA(qctx, d.q, host, []string{srv.Address})
		cancel()

		switch {
		case err == nil:
			srv.Record(time.Since(start), nil)
			return Signature{IPs: ips, TTL: ttl}, outcomeAnswer
		case errors.Is(err, dnsclient.ErrNXDomain),
			errors.Is(err, dnsclient.ErrNoAnswer):
			srv.Record(time.Since(start), nil)
			return Signature{}, outcomeEmpty
		case dnsclient.IsTimeout(err):
			srv.Record(0, err)
			timeouts++
		default:
			srv.Record(0, err)
		}
	}
	if timeouts == len(active) && timeouts > 0 {
		return Signature{}, outcomeTimeout
	}
	return Signature{}, outcomeFailed
}

func (d *Detector) randomLabel() string {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()

	size := 8 + d.rng.Intn(5)
	var b strings.Builder
	for i := 0; i < size; i++ {
		b.WriteByte(labelAlphabet[d.rng.Intn(len(labelAlphabet))])
	}
	return b.String()
}
