package sources

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// HackerTarget reads the hostsearch API, one "host,ip" pair per line.
type HackerTarget struct {
	Client  *HTTPClient
	BaseURL string
}

func (s *HackerTarget) Name() string           { return "hackertarget" }
func (s *HackerTarget) Capability() Capability { return CapabilityHTTP }

func (s *HackerTarget) Search(ctx context.Context, domain string) ([]string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://api.hackertarget.com/hostsearch/"
	}
	body, err := s.Client.Get(ctx, s.Name(), fmt.Sprintf("%s?q=%s", base, url.QueryEscape(domain)))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(body))
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "error") || strings.Contains(lower, "api count exceeded") {
		return nil, &SourceError{
			Source:  s.Name(),
			Type:    ErrTypeRateLimit,
			Message: text,
			Err:     errors.New(text),
		}
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		host, _, _ := strings.Cut(sc.Text(), ",")
		if host = strings.TrimSpace(host); host != "" {
			out = append(out, host)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, newParseError(s.Name(), err)
	}
	return out, nil
}
