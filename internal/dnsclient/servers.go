package dnsclient

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// SystemServers reads the nameservers of a resolv.conf style file.
func SystemServers(path string) ([]string, error) {
	if path == "" {
		path = "/etc/resolv.conf"
	}
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	var out []string
	for _, srv := range cfg.Servers {
		out = append(out, net.JoinHostPort(srv, cfg.Port))
	}
	return out, nil
}

// HostPort adds the default DNS port to a bare server address.
func HostPort(server string) (string, error) {
	host, port, err := splitHostPort(server)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

func splitHostPort(host string) (string, string, error) {
	if strings.Contains(host, ":") {
		if ip := net.ParseIP(host); ip != nil {
			return host, "53", nil
		}
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", "", err
		}
		return h, p, nil
	}
	return host, "53", nil
}
