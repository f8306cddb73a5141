package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

var userAgents = []string{
	"Mozilla/5.0 (X11; Linux x86_64)",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
}

// HTTPClient is shared by the HTTP sources. Requests are paced by a
// token bucket so search engines and public APIs are not hammered.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

func NewHTTPClient(timeout time.Duration, perSecond float64) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *HTTPClient) randomAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return userAgents[c.rng.Intn(len(userAgents))]
}

// Get fetches url for source and returns the body of a 200 response.
func (c *HTTPClient) Get(ctx context.Context, source, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &SourceError{Source: source, Type: ErrTypeTimeout, Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	req.Header.Set("User-Agent", c.randomAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		typ := ErrTypeNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			typ = ErrTypeTimeout
		}
		return nil, &SourceError{Source: source, Type: typ, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(source, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &SourceError{Source: source, Type: ErrTypeNetwork, Message: err.Error(), Err: err}
	}
	return body, nil
}
