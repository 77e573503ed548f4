// ABOUTME: HTTP client construction for the gist store.
// ABOUTME: Stacks a bearer token transport on top of a client-side rate limiter.
package remote

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// requestsPerSecond is the max requests per second the client will make
	requestsPerSecond = 5
	// requestBurst is the burst capacity for rate limiting
	requestBurst = 10

	requestTimeout = 30 * time.Second
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewHTTPClient returns a rate limited client that authenticates with token.
// An empty token yields an unauthenticated client.
func NewHTTPClient(token string) *http.Client {
	interval := time.Second / time.Duration(requestsPerSecond)
	var rt http.RoundTripper = &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), requestBurst),
	}
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rt,
		}
	}
	return &http.Client{Transport: rt, Timeout: requestTimeout}
}
