package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Google scrapes result links of a site: query, page by page, until a
// page yields nothing new.
type Google struct {
	Client  *HTTPClient
	BaseURL string
	Pages   int
}

func (s *Google) Name() string           { return "google" }
func (s *Google) Capability() Capability { return CapabilityHTTP }

func (s *Google) Search(ctx context.Context, domain string) ([]string, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://www.google.com/search"
	}
	pages := s.Pages
	if pages < 1 {
		pages = 5
	}

	var results []string
	seen := make(map[string]bool)

	for page := 0; page < pages; page++ {
		u := fmt.Sprintf(
			"%s?q=%s&start=%d",
			base,
			url.QueryEscape("-www site:"+domain),
			page*10,
		)
		body, err := s.Client.Get(ctx, s.Name(), u)
		if err != nil {
			if len(results) > 0 {
				return results, nil
			}
			return nil, err
		}

		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, newParseError(s.Name(), err)
		}

		fresh := 0
		for _, href := range collectLinks(doc) {
			host := googleHost(href, domain)
			if host == "" || seen[host] {
				continue
			}
			seen[host] = true
			results = append(results, host)
			fresh++
		}
		if fresh == 0 {
			break
		}
	}
	return results, nil
}

func collectLinks(node *html.Node) []string {
	var links []string
	if node.Type == html.ElementNode && node.Data == "a" {
		for _, attr := range node.Attr {
			if attr.Key == "href" {
				links = append(links, attr.Val)
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		links = append(links, collectLinks(child)...)
	}
	return links
}

// googleHost unwraps Google's /url?q= redirect and returns the link's
// host when it is a subdomain of domain.
func googleHost(href, domain string) string {
	if strings.HasPrefix(href, "/url?") {
		href = "https://www.google.com" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if target := u.Query().Get("q"); target != "" && strings.Contains(target, "://") {
		u, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.HasSuffix(host, "."+domain) {
		return ""
	}
	return host
}
