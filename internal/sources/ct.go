package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// CrtSh queries the crt.sh certificate transparency search.
type CrtSh struct {
	Client  *HTTPClient
	BaseURL string
}

func (s *CrtSh) Name() string           { return "crtsh" }
func (s *CrtSh) Capability() Capability { return CapabilityHTTP }

func (s *CrtSh) Search(ctx context.Context, domain string) ([]string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://crt.sh/"
	}
	u := fmt.Sprintf("%s?q=%s&output=json", base, url.QueryEscape("%."+domain))

	body, err := s.Client.Get(ctx, s.Name(), u)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		NameValue  string `json:"name_value"`
		CommonName string `json:"common_name"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, newParseError(s.Name(), err)
	}

	var out []string
	for _, e := range entries {
		out = append(out, strings.Split(e.NameValue, "\n")...)
		if e.CommonName != "" {
			out = append(out, e.CommonName)
		}
	}
	return out, nil
}

// CertSpotter queries the SSLMate CertSpotter issuance API.
type CertSpotter struct {
	Client  *HTTPClient
	BaseURL string
}

func (s *CertSpotter) Name() string           { return "certspotter" }
func (s *CertSpotter) Capability() Capability { return CapabilityHTTP }

func (s *CertSpotter) Search(ctx context.Context, domain string) ([]string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://api.certspotter.com/v1/issuances"
	}
	u := fmt.Sprintf(
		"%s?domain=%s&include_subdomains=true&expand=dns_names",
		base,
		url.QueryEscape(domain),
	)

	body, err := s.Client.Get(ctx, s.Name(), u)
	if err != nil {
		return nil, err
	}

	var issuances []struct {
		DNSNames []string `json:"dns_names"`
	}
	if err := json.Unmarshal(body, &issuances); err != nil {
		return nil, newParseError(s.Name(), err)
	}

	var out []string
	for _, iss := range issuances {
		out = append(out, iss.DNSNames...)
	}
	return out, nil
}
