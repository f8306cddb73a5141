package sources

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Settings struct {
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	SearchPages       int
	Wordlist          string
}

var factories = map[string]func(*HTTPClient, Settings) Source{
	"crtsh": func(c *HTTPClient, _ Settings) Source {
		return &CrtSh{Client: c}
	},
	"certspotter": func(c *HTTPClient, _ Settings) Source {
		return &CertSpotter{Client: c}
	},
	"hackertarget": func(c *HTTPClient, _ Settings) Source {
		return &HackerTarget{Client: c}
	},
	"google": func(c *HTTPClient, s Settings) Source {
		return &Google{Client: c, Pages: s.SearchPages}
	},
	"bing": func(c *HTTPClient, s Settings) Source {
		return &Bing{Client: c, Pages: s.SearchPages}
	},
	"brute": func(_ *HTTPClient, s Settings) Source {
		return &Wordlist{Path: s.Wordlist}
	},
}

// Groups name sets of sources that are usually enabled together.
var Groups = map[string][]string{
	"ct":     {"crtsh", "certspotter"},
	"public": {"hackertarget"},
	"search": {"google", "bing"},
	"brute":  {"brute"},
}

func Names() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Expand resolves source and group names, "all" included, into a sorted
// list of source names.
func Expand(selection []string) ([]string, error) {
	set := make(map[string]bool)
	for _, item := range selection {
		item = strings.ToLower(strings.TrimSpace(item))
		switch {
		case item == "":
		case item == "all":
			for name := range factories {
				set[name] = true
			}
		case Groups[item] != nil:
			for _, name := range Groups[item] {
				set[name] = true
			}
		case factories[item] != nil:
			set[item] = true
		default:
			return nil, fmt.Errorf("unknown source %q", item)
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Build instantiates the named sources. The HTTP sources share one
// paced client.
func Build(names []string, s Settings) ([]Source, error) {
	client := NewHTTPClient(s.HTTPTimeout, s.RequestsPerSecond)

	var out []Source
	for _, name := range names {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		if name == "brute" && s.Wordlist == "" {
			return nil, fmt.Errorf("source brute needs a wordlist")
		}
		out = append(out, factory(client, s))
	}
	return out, nil
}
