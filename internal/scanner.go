package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bios000/scouter/internal/config"
	"github.com/bios000/scouter/internal/dnsclient"
	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/report"
	"github.com/bios000/scouter/internal/scan"
	"github.com/bios000/scouter/internal/sources"
)

func Execute(ctx context.Context, args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(normalizeLongFlags(args))
	return cmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           program,
		Short:         "Subdomain discovery and verification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScanCmd(), newSourcesCmd())
	return root
}

func newScanCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "scan [domain]",
		Short: "Gather, resolve and check subdomains of a domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.domain = args[0]
			}
			if opts.domain == "" {
				return errors.New("a target domain is required")
			}
			return runScan(cmd, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.domain, "domain", "d", "", "target domain")
	fs.StringVarP(&opts.configPath, "config", "c", defaultConfig, "YAML config file")
	fs.StringSliceVarP(&opts.sources, "sources", "s", nil, "sources or groups to run (ct, public, search, brute)")
	fs.BoolVarP(&opts.all, "all", "a", false, "run every source")
	fs.StringVarP(&opts.wordlist, "wordlist", "w", "", "brute force wordlist, enables the brute source")
	fs.StringSliceVarP(&opts.resolvers, "resolver", "r", nil, "resolver address to use instead of the configured list")
	fs.BoolVar(&opts.systemResolvers, "system-resolvers", false, "also try the resolvers in /etc/resolv.conf")
	fs.IntVarP(&opts.threads, "threads", "t", 0, "concurrent workers per stage")
	fs.IntVar(&opts.timeout, "timeout", 0, "DNS timeout in seconds")
	fs.DurationVar(&opts.scanTimeout, "scan-timeout", 0, "stop starting new work after this long")
	fs.StringVar(&opts.massdns, "massdns", "", "path to the massdns binary")
	fs.StringVar(&opts.workDir, "work-dir", "", "directory for temporary files")
	fs.BoolVar(&opts.noTakeover, "no-takeover", false, "skip subdomain takeover checks")
	fs.BoolVar(&opts.noAXFR, "no-axfr", false, "skip zone transfer checks")
	fs.BoolVar(&opts.whois, "whois", false, "look up whois netranges of resolved addresses")
	fs.BoolVar(&opts.jsonOut, "json", false, "print the report as JSON")
	fs.BoolVarP(&opts.debug, "debug", "v", false, "debug logging")

	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List available sources and groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			built, err := sources.Build(sources.Names(), sources.Settings{Wordlist: "-"})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, src := range built {
				fmt.Fprintf(out, "%-14s %s\n", src.Name(), src.Capability())
			}
			fmt.Fprintln(out)
			for _, group := range []string{"ct", "public", "search", "brute"} {
				fmt.Fprintf(out, "%-14s %s\n", group, strings.Join(sources.Groups[group], ","))
			}
			return nil
		},
	}
}

func runScan(cmd *cobra.Command, opts *options) error {
	log := newLogger(opts.debug)

	cfg, err := config.Load(opts.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	names, err := sources.Expand(cfg.Sources)
	if err != nil {
		return err
	}
	if cfg.Wordlist != "" && !contains(names, "brute") {
		names = append(names, "brute")
	}
	if contains(names, "brute") {
		if cfg.Wordlist == "" {
			cfg.Wordlist = defaultWordlist
		}
		cfg.Wordlist = findWordlist(cfg.Wordlist)
	}
	srcs, err := sources.Build(names, sources.Settings{
		HTTPTimeout:       cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		SearchPages:       cfg.SearchPages,
		Wordlist:          cfg.Wordlist,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"domain":  opts.domain,
		"sources": strings.Join(names, ","),
	}).Info("starting scan")

	scanner := scan.New(cfg, scan.Dependencies{
		Querier: dnsclient.New(dnsclient.Options{
			Timeout: cfg.DNSTimeout,
			Rate:    cfg.QueriesPerSec,
		}),
		Sources: srcs,
		Log:     log,
	})

	r, err := scanner.Run(cmd.Context(), opts.domain)
	var rerr *massresolve.ResolutionError
	if err != nil && !errors.As(err, &rerr) {
		return err
	}
	if werr := writeReport(cmd.OutOrStdout(), r, opts.jsonOut); werr != nil {
		return werr
	}
	return err
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *options) {
	changed := cmd.Flags().Changed

	if changed("sources") {
		cfg.Sources = opts.sources
	}
	if opts.all {
		cfg.Sources = []string{"all"}
	}
	if changed("wordlist") {
		cfg.Wordlist = opts.wordlist
	}
	if changed("resolver") {
		cfg.Resolvers = nil
		for _, addr := range opts.resolvers {
			cfg.Resolvers = append(cfg.Resolvers, config.Resolver{Address: addr, Weight: 1})
		}
	}
	if opts.systemResolvers {
		cfg.SystemResolvers = true
	}
	if changed("threads") {
		cfg.Threads = opts.threads
	}
	if changed("timeout") {
		cfg.DNSTimeout = time.Duration(opts.timeout) * time.Second
		cfg.HealthTimeout = cfg.DNSTimeout
	}
	if changed("scan-timeout") {
		cfg.ScanTimeout = opts.scanTimeout
	}
	if changed("massdns") {
		cfg.MassDNSPath = opts.massdns
	}
	if changed("work-dir") {
		cfg.WorkDir = opts.workDir
	}
	if opts.noTakeover {
		cfg.Takeover = false
	}
	if opts.noAXFR {
		cfg.ZoneTransfer = false
	}
	if opts.whois {
		cfg.Whois = true
	}
}

func writeReport(w io.Writer, r *report.Report, asJSON bool) error {
	if r == nil {
		return nil
	}
	if asJSON {
		return r.WriteJSON(w)
	}
	return r.WriteText(w)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
