package internal

import "time"

const (
	program         = "scouter"
	version         = "0.4.0"
	defaultConfig   = "scouter.yaml"
	defaultWordlist = "/usr/share/scouter/subdomains.txt"
)

type options struct {
	domain          string
	configPath      string
	sources         []string
	all             bool
	wordlist        string
	resolvers       []string
	systemResolvers bool
	threads         int
	timeout         int
	scanTimeout     time.Duration
	massdns         string
	workDir         string
	noTakeover      bool
	noAXFR          bool
	whois           bool
	jsonOut         bool
	debug           bool
}
