// Package scan runs the discovery and verification pipeline for one
// target domain.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bios000/scouter/internal/axfr"
	"github.com/bios000/scouter/internal/config"
	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/report"
	"github.com/bios000/scouter/internal/resolvers"
	"github.com/bios000/scouter/internal/sources"
	"github.com/bios000/scouter/internal/takeover"
	"github.com/bios000/scouter/internal/wildcard"
)

// Dependencies are the collaborators a scan talks to. Nil members get
// the production implementation.
type Dependencies struct {
	Querier    dnsclient.Querier
	Sources    []sources.Source
	Runner     massresolve.Runner
	Prober     takeover.Prober
	Transferer axfr.Transferer
	Whois      report.WhoisFunc
	Log        logrus.FieldLogger
}

type Scanner struct {
	cfg  *config.Config
	deps Dependencies
	log  logrus.FieldLogger
}

func New(cfg *config.Config, deps Dependencies) *Scanner {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Querier == nil {
		deps.Querier = dnsclient.New(dnsclient.Options{
			Timeout: cfg.DNSTimeout,
			Rate:    cfg.QueriesPerSec,
		})
	}
	if deps.Runner == nil {
		deps.Runner = &massresolve.MassDNS{
			Path:    cfg.MassDNSPath,
			Timeout: cfg.MassDNSTimeout,
		}
	}
	if deps.Prober == nil {
		deps.Prober = takeover.NewHTTPProber(cfg.HTTPTimeout)
	}
	if deps.Transferer == nil {
		deps.Transferer = &axfr.DNSTransfer{Timeout: cfg.AXFRTimeout}
	}
	if deps.Whois == nil {
		deps.Whois = report.NewWhois(cfg.HTTPTimeout)
	}
	return &Scanner{cfg: cfg, deps: deps, log: deps.Log}
}

// Run scans domain. A *massresolve.ResolutionError is returned together
// with a report that lists the gathered candidates as unresolved.
func (s *Scanner) Run(ctx context.Context, domain string) (*report.Report, error) {
	domain = strings.ToLower(dnsclient.TrimDot(strings.TrimSpace(domain)))
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", config.ErrInvalid)
	}
	started := time.Now()
	log := s.log.WithField("domain", domain)

	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp(s.cfg.WorkDir, "scouter-")
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	log.WithField("phase", "resolvers").Info("checking resolvers")
	pool, err := s.buildPool(ctx)
	if err != nil {
		return nil, err
	}
	resolverFile := filepath.Join(workDir, "resolvers.txt")
	if err := pool.WriteFile(resolverFile); err != nil {
		return nil, err
	}
	servers := pool.Addresses()

	var (
		candidates []string
		sig        *wildcard.Signature
		transfers  []axfr.Finding
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		log.WithField("phase", "sources").Info("gathering candidates")
		agg := sources.NewAggregator(s.deps.Sources, s.cfg.Threads, s.log)
		candidates, _ = agg.Gather(ctx, domain)
		return nil
	})
	g.Go(func() error {
		log.WithField("phase", "wildcard").Info("probing for wildcard dns")
		det := wildcard.NewDetector(s.deps.Querier, pool, wildcard.Options{
			Probes:    s.cfg.WildcardProbes,
			Agreement: s.cfg.WildcardAgree,
			Retries:   s.cfg.ProbeRetries,
			Timeout:   s.cfg.DNSTimeout,
			Log:       s.log,
		})
		var err error
		sig, err = det.Detect(ctx, domain)
		if err != nil {
			log.WithError(err).Warn("wildcard detection failed")
		}
		return nil
	})
	if s.cfg.ZoneTransfer {
		g.Go(func() error {
			log.WithField("phase", "axfr").Info("trying zone transfers")
			checker := axfr.NewChecker(s.deps.Querier, s.deps.Transferer, axfr.Options{
				Servers: servers,
				Threads: s.cfg.Threads,
				Timeout: s.cfg.DNSTimeout,
				Log:     s.log,
			})
			var err error
			transfers, err = checker.Check(ctx, domain)
			if err != nil {
				log.WithError(err).Warn("zone transfer check failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	in := report.Input{
		Domain:        domain,
		StartedAt:     started,
		Wildcard:      sig,
		ZoneTransfers: transfers,
	}

	log.WithField("phase", "resolve").Info("resolving candidates")
	resolver := massresolve.New(s.deps.Runner, workDir, s.log)
	res, err := resolver.Resolve(context.WithoutCancel(ctx), candidates, resolverFile)
	if err != nil {
		var rerr *massresolve.ResolutionError
		if errors.As(err, &rerr) {
			in.Unresolved = candidates
			return report.Assemble(in), err
		}
		return nil, err
	}

	hosts := wildcard.Filter(context.WithoutCancel(ctx), res.Resolved, sig, s.cfg.FilterWorkers)
	if sig != nil {
		log.WithFields(logrus.Fields{
			"before": len(res.Resolved),
			"after":  len(hosts),
		}).Info("wildcard hosts removed")
	}
	in.Hosts = hosts

	if s.cfg.Takeover {
		log.WithField("phase", "takeover").Info("checking takeovers")
		det := takeover.NewDetector(s.deps.Querier, s.deps.Prober, takeover.Options{
			Servers:    servers,
			Threads:    s.cfg.FilterWorkers,
			DNSTimeout: s.cfg.DNSTimeout,
			Log:        s.log,
		})
		targets := append(append([]massresolve.Record{}, hosts...), res.CNAMEOnly...)
		in.Takeovers = det.Check(ctx, targets)
	}

	if s.cfg.Whois {
		log.WithField("phase", "whois").Info("looking up netranges")
		var ips []string
		for _, h := range hosts {
			ips = append(ips, h.A...)
		}
		in.NetRanges = report.NetRanges(ctx, ips, s.deps.Whois, s.cfg.Threads, s.log)
	}

	r := report.Assemble(in)
	log.WithFields(logrus.Fields{
		"hosts":          len(r.Hosts),
		"takeovers":      len(r.Takeovers),
		"zone_transfers": len(r.ZoneTransfers),
		"took":           time.Since(started).Round(time.Millisecond),
	}).Info("scan finished")
	return r, nil
}

func (s *Scanner) buildPool(ctx context.Context) (*resolvers.Pool, error) {
	var candidates []resolvers.Candidate
	for _, r := range s.cfg.Resolvers {
		candidates = append(candidates, resolvers.Candidate{Address: r.Address, Weight: r.Weight})
	}
	if s.cfg.SystemResolvers {
		system, err := dnsclient.SystemServers(s.cfg.ResolvConf)
		if err != nil {
			s.log.WithError(err).Warn("cannot read system resolvers")
		}
		for _, addr := range system {
			candidates = append(candidates, resolvers.Candidate{Address: addr, Weight: 1})
		}
	}

	checker := &resolvers.Checker{
		Querier:    s.deps.Querier,
		HealthHost: s.cfg.HealthHost,
		Timeout:    s.cfg.HealthTimeout,
		Threads:    s.cfg.Threads,
		Log:        s.log,
	}
	return checker.Build(ctx, candidates)
}
