package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type SourceResult struct {
	Source     string
	Subdomains []string
	Error      *SourceError
	Duration   time.Duration
}

func (r *SourceResult) IsSuccess() bool {
	return r.Error == nil
}

// SourceStats summarises one gathering pass.
type SourceStats struct {
	Total     int
	Succeeded int
	Failed    int
	Found     map[string]int
	Errors    map[string]string
}

type Aggregator struct {
	sources []Source
	threads int
	log     logrus.FieldLogger
}

func NewAggregator(sources []Source, threads int, log logrus.FieldLogger) *Aggregator {
	if threads < 1 {
		threads = 10
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{sources: sources, threads: threads, log: log}
}

// Gather runs every source concurrently and returns the sorted union of
// their hostnames under domain. A failing source contributes nothing.
func (a *Aggregator) Gather(ctx context.Context, domain string) ([]string, SourceStats) {
	results := make([]SourceResult, len(a.sources))

	g := new(errgroup.Group)
	g.SetLimit(a.threads)
	taskCtx := context.WithoutCancel(ctx)
	for i, src := range a.sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = a.run(taskCtx, src, domain)
			return nil
		})
	}
	_ = g.Wait()

	stats := SourceStats{
		Found:  make(map[string]int),
		Errors: make(map[string]string),
	}
	union := make(map[string]bool)
	for _, res := range results {
		if res.Source == "" {
			continue
		}
		stats.Total++
		if !res.IsSuccess() {
			stats.Failed++
			stats.Errors[res.Source] = res.Error.Error()
			continue
		}
		stats.Succeeded++
		stats.Found[res.Source] = len(res.Subdomains)
		for _, name := range res.Subdomains {
			union[name] = true
		}
	}

	out := make([]string, 0, len(union))
	for name := range union {
		out = append(out, name)
	}
	sort.Strings(out)

	a.log.WithFields(logrus.Fields{
		"sources":    stats.Total,
		"failed":     stats.Failed,
		"candidates": len(out),
		"found":      stats.Found,
		"errors":     stats.Errors,
	}).Info("source gathering finished")
	return out, stats
}

func (a *Aggregator) run(ctx context.Context, src Source, domain string) (res SourceResult) {
	res.Source = src.Name()
	log := a.log.WithField("source", res.Source)
	start := time.Now()

	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Subdomains = nil
			res.Error = &SourceError{
				Source:  res.Source,
				Type:    ErrTypeUnknown,
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
		if res.Error != nil {
			res.Error.Duration = res.Duration
			log.WithError(res.Error).Warn("source failed")
			return
		}
		log.WithField("found", len(res.Subdomains)).Debug("source finished")
	}()

	names, err := src.Search(ctx, domain)
	if err != nil {
		res.Error = asSourceError(res.Source, err)
		return res
	}

	seen := make(map[string]bool)
	for _, name := range names {
		n, ok := Normalize(name, domain)
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		res.Subdomains = append(res.Subdomains, n)
	}
	return res
}

func asSourceError(source string, err error) *SourceError {
	var serr *SourceError
	if errors.As(err, &serr) {
		if serr.Source == "" {
			serr.Source = source
		}
		return serr
	}
	typ := ErrTypeNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		typ = ErrTypeTimeout
	}
	return &SourceError{
		Source:  source,
		Type:    typ,
		Message: err.Error(),
		Err:     err,
	}
}
