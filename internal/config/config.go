// Package config holds scan settings loaded from YAML and overridden by
// command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bios000/scouter/internal/resolvers"
)

// ErrInvalid marks a configuration that cannot start a scan.
var ErrInvalid = errors.New("invalid configuration")

type Resolver struct {
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

type Config struct {
	Resolvers       []Resolver `yaml:"resolvers"`
	SystemResolvers bool       `yaml:"system_resolvers"`
	ResolvConf      string     `yaml:"resolv_conf"`
	HealthHost      string     `yaml:"health_host"`

	Threads        int `yaml:"threads"`
	FilterWorkers  int `yaml:"filter_workers"`
	QueriesPerSec  int `yaml:"queries_per_second"`
	WildcardProbes int `yaml:"wildcard_probes"`
	WildcardAgree  int `yaml:"wildcard_agreement"`
	ProbeRetries   int `yaml:"probe_retries"`

	HealthTimeout  time.Duration `yaml:"health_timeout"`
	DNSTimeout     time.Duration `yaml:"dns_timeout"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	AXFRTimeout    time.Duration `yaml:"axfr_timeout"`
	MassDNSTimeout time.Duration `yaml:"massdns_timeout"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`

	MassDNSPath string `yaml:"massdns_path"`
	WorkDir     string `yaml:"work_dir"`

	Sources           []string `yaml:"sources"`
	Wordlist          string   `yaml:"wordlist"`
	SearchPages       int      `yaml:"search_pages"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`

	Takeover     bool `yaml:"takeover"`
	ZoneTransfer bool `yaml:"zone_transfer"`
	Whois        bool `yaml:"whois"`
}

func Default() *Config {
	return &Config{
		Resolvers:         defaultResolvers(),
		ResolvConf:        "/etc/resolv.conf",
		HealthHost:        "www.baidu.com",
		Threads:           10,
		FilterWorkers:     32,
		WildcardProbes:    5,
		WildcardAgree:     4,
		ProbeRetries:      2,
		HealthTimeout:     2 * time.Second,
		DNSTimeout:        2 * time.Second,
		HTTPTimeout:       10 * time.Second,
		AXFRTimeout:       10 * time.Second,
		MassDNSTimeout:    10 * time.Minute,
		MassDNSPath:       "massdns",
		Sources:           []string{"ct", "public"},
		SearchPages:       5,
		RequestsPerSecond: 2,
		Takeover:          true,
		ZoneTransfer:      true,
	}
}

func defaultResolvers() []Resolver {
	out := make([]Resolver, 0, len(resolvers.DefaultCandidates))
	for _, c := range resolvers.DefaultCandidates {
		out = append(out, Resolver{Address: c.Address, Weight: c.Weight})
	}
	return out
}

// Load reads path over the defaults. A missing file is an error only
// when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if len(c.Resolvers) == 0 && !c.SystemResolvers {
		problems = append(problems, "no resolvers configured")
	}
	if c.Threads < 1 {
		problems = append(problems, "threads must be positive")
	}
	if c.FilterWorkers < 1 {
		problems = append(problems, "filter_workers must be positive")
	}
	if c.WildcardAgree < 1 {
		problems = append(problems, "wildcard_agreement must be positive")
	}
	if c.WildcardProbes < c.WildcardAgree {
		problems = append(problems, "wildcard_probes must be at least wildcard_agreement")
	}
	if c.ProbeRetries < 0 {
		problems = append(problems, "probe_retries must not be negative")
	}
	if c.DNSTimeout <= 0 || c.HealthTimeout <= 0 || c.HTTPTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.ScanTimeout < 0 {
		problems = append(problems, "scan_timeout must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
