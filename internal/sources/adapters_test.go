package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, fn http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return srv.URL
}

func testClient() *HTTPClient {
	return NewHTTPClient(5*time.Second, 0)
}

func TestCrtSh(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "%.example.com", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		fmt.Fprint(w, `[{"name_value":"a.example.com\n*.b.example.com","common_name":"c.example.com"}]`)
	})

	got, err := (&CrtSh{Client: testClient(), BaseURL: url + "/"}).Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com", "*.b.example.com", "c.example.com"}, got)
}

func TestCrtShBadJSON(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>busy</html>`)
	})

	_, err := (&CrtSh{Client: testClient(), BaseURL: url + "/"}).Search(context.Background(), "example.com")
	var serr *SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ErrTypeParse, serr.Type)
}

func TestCertSpotter(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "example.com", r.URL.Query().Get("domain"))
		fmt.Fprint(w, `[{"dns_names":["x.example.com","y.example.com"]},{"dns_names":["z.example.com"]}]`)
	})

	got, err := (&CertSpotter{Client: testClient(), BaseURL: url}).Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.example.com", "y.example.com", "z.example.com"}, got)
}

func TestHTTPStatusError(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := (&CertSpotter{Client: testClient(), BaseURL: url}).Search(context.Background(), "example.com")
	var serr *SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
	assert.Equal(t, ErrTypeHTTP, serr.Type)
}

func TestHackerTarget(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "www.example.com,192.0.2.1\nmail.example.com,192.0.2.2\n")
	})

	got, err := (&HackerTarget{Client: testClient(), BaseURL: url}).Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"www.example.com", "mail.example.com"}, got)
}

func TestHackerTargetQuota(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "API count exceeded - Increase Quota with Membership")
	})

	_, err := (&HackerTarget{Client: testClient(), BaseURL: url}).Search(context.Background(), "example.com")
	var serr *SourceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ErrTypeRateLimit, serr.Type)
}

func TestGoogle(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		switch start {
		case 0:
			fmt.Fprint(w, `<html><body>
<a href="/url?q=https://shop.example.com/cart&sa=U">shop</a>
<a href="https://blog.example.com/post">blog</a>
<a href="https://other.org/">other</a>
</body></html>`)
		case 10:
			fmt.Fprint(w, `<a href="https://dev.example.com/">dev</a><a href="https://blog.example.com/">again</a>`)
		default:
			fmt.Fprint(w, `<a href="https://blog.example.com/">again</a>`)
		}
	})

	g := &Google{Client: testClient(), BaseURL: url, Pages: 10}
	got, err := g.Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"shop.example.com", "blog.example.com", "dev.example.com"}, got)
}

func TestBing(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("first") != "1" {
			fmt.Fprint(w, `<ol id="b_results"></ol>`)
			return
		}
		fmt.Fprint(w, `<ol id="b_results">
<li class="b_algo"><h2><a href="https://news.example.com/today">News</a></h2><cite>https://news.example.com › today</cite></li>
<li class="b_algo"><h2><a href="https://elsewhere.net/">X</a></h2><cite>status.example.com/page</cite></li>
</ol>`)
	})

	b := &Bing{Client: testClient(), BaseURL: url, Pages: 3}
	got, err := b.Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"news.example.com", "status.example.com"}, got)
}

func TestWordlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("www\n\n# comment\n  api  \nmail\n"), 0o644))

	got, err := (&Wordlist{Path: path}).Search(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"www.example.com", "api.example.com", "mail.example.com"}, got)
}

func TestWordlistMissing(t *testing.T) {
	_, err := (&Wordlist{Path: filepath.Join(t.TempDir(), "nope")}).Search(context.Background(), "example.com")
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	got, err := Expand([]string{"ct", "Google", "crtsh"})
	require.NoError(t, err)
	assert.Equal(t, []string{"certspotter", "crtsh", "google"}, got)

	all, err := Expand([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, Names(), all)

	_, err = Expand([]string{"shodan"})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	srcs, err := Build([]string{"crtsh", "brute"}, Settings{Wordlist: "words.txt"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, CapabilityHTTP, srcs[0].Capability())
	assert.Equal(t, CapabilityLocal, srcs[1].Capability())

	_, err = Build([]string{"brute"}, Settings{})
	assert.Error(t, err)
}
