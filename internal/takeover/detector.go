// Package takeover checks CNAME targets against known hosting services
// and confirms dangling ones before reporting them.
package takeover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/workpool"
)

type Finding struct {
	Hostname string `json:"hostname"`
	CNAME    string `json:"cname"`
	Service  string `json:"service"`
	Evidence string `json:"evidence"`
}

type Options struct {
	Fingerprints []Fingerprint
	Servers      []string
	Threads      int
	DNSTimeout   time.Duration
	Log          logrus.FieldLogger
}

type Detector struct {
	q      dnsclient.Querier
	prober Prober
	opts   Options
	log    logrus.FieldLogger
}

func NewDetector(q dnsclient.Querier, prober Prober, opts Options) *Detector {
	if opts.Fingerprints == nil {
		opts.Fingerprints = Fingerprints
	}
	if opts.Threads < 1 {
		opts.Threads = 32
	}
	if opts.DNSTimeout <= 0 {
		opts.DNSTimeout = 2 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Detector{q: q, prober: prober, opts: opts, log: opts.Log}
}

// Check evaluates every record that has a CNAME chain. A failure on one
// host is logged and never affects the others.
func (d *Detector) Check(ctx context.Context, records []massresolve.Record) []Finding {
	var targets []massresolve.Record
	for _, rec := range records {
		if rec.Canonical() != "" {
			targets = append(targets, rec)
		}
	}

	findings := workpool.Collect(ctx, targets, d.opts.Threads,
		func(ctx context.Context, rec massresolve.Record) (Finding, bool) {
			f, err := d.Evaluate(ctx, rec)
			if err != nil {
				d.log.WithError(err).
					WithField("host", rec.Name).
					Debug("takeover check aborted")
				return Finding{}, false
			}
			if f == nil {
				return Finding{}, false
			}
			d.log.WithFields(logrus.Fields{
				"host":    f.Hostname,
				"cname":   f.CNAME,
				"service": f.Service,
			}).Warn("possible subdomain takeover")
			return *f, true
		})

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Hostname < findings[j].Hostname
	})
	return findings
}

// Evaluate returns a finding only when the matched service is confirmed:
// the target does not resolve (if required) and the verification URL
// answers with the expected status and body.
func (d *Detector) Evaluate(ctx context.Context, rec massresolve.Record) (*Finding, error) {
	cname := rec.Canonical()
	if cname == "" {
		return nil, nil
	}
	fp, ok := Match(d.opts.Fingerprints, cname)
	if !ok {
		return nil, nil
	}

	if fp.RequiresNXDOMAIN {
		qctx, cancel := context.WithTimeout(ctx, d.opts.DNSTimeout)
		_, _, err := dnsclient.LookupA(qctx, d.q, cname, d.opts.Servers)
		cancel()

		switch {
		case err == nil, errors.Is(err, dnsclient.ErrNoAnswer):
			return nil, nil
		case errors.Is(err, dnsclient.ErrNXDomain):
		default:
			return nil, fmt.Errorf("resolve %s: %w", cname, err)
		}
	}

	url := fp.URL(cname)
	status, body, err := d.prober.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != fp.ExpectedStatus {
		return nil, nil
	}
	if fp.BodyMarker != "" && !strings.Contains(body, fp.BodyMarker) {
		return nil, nil
	}

	evidence := fmt.Sprintf("%s returned %d", url, status)
	if fp.BodyMarker != "" {
		evidence += fmt.Sprintf(" with %q", fp.BodyMarker)
	}
	return &Finding{
		Hostname: rec.Name,
		CNAME:    cname,
		Service:  fp.Service,
		Evidence: evidence,
	}, nil
}
