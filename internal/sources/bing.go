package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Bing scrapes organic results of a site: query.
type Bing struct {
	Client  *HTTPClient
	BaseURL string
	Pages   int
}

func (s *Bing) Name() string           { return "bing" }
func (s *Bing) Capability() Capability { return CapabilityHTTP }

func (s *Bing) Search(ctx context.Context, domain string) ([]string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://www.bing.com/search"
	}
	pages := s.Pages
	if pages < 1 {
		pages = 5
	}

	var results []string
	seen := make(map[string]bool)

	for page := 0; page < pages; page++ {
		u := fmt.Sprintf(
			"%s?q=%s&first=%d",
			base,
			url.QueryEscape("site:"+domain),
			page*10+1,
		)
		body, err := s.Client.Get(ctx, s.Name(), u)
		if err != nil {
			if len(results) > 0 {
				return results, nil
			}
			return nil, err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, newParseError(s.Name(), err)
		}

		fresh := 0
		add := func(raw string) {
			host := linkHost(raw)
			if host == "" || seen[host] || !strings.HasSuffix(host, "."+domain) {
				return
			}
			seen[host] = true
			results = append(results, host)
			fresh++
		}
		doc.Find("li.b_algo h2 a").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		})
		doc.Find("li.b_algo cite").Each(func(_ int, sel *goquery.Selection) {
			add(sel.Text())
		})
		if fresh == 0 {
			break
		}
	}
	return results, nil
}

// linkHost accepts a full URL or the bare "host/path" form Bing prints
// in result citations.
func linkHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if i := strings.Index(raw, " "); i >= 0 {
		raw = raw[:i]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
