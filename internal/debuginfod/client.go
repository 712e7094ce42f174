// Package debuginfod implements C4: a client for one or more upstream
// debuginfod HTTP servers, with a per-URL-path byte cache. Grounded on the
// teacher's HTTP client conventions (bounded timeouts, explicit transport
// configuration) seen across internal/colony's pollers.
package debuginfod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/profilestore/internal/errors"
	"github.com/coral-mesh/profilestore/internal/retry"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

const (
	requestTimeout = 5 * time.Second
	maxRedirects   = 2
)

var fetchRetry = retry.Config{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     1 * time.Second,
	Jitter:         0.2,
}

// Client fetches debug info bytes by build-id from an ordered list of
// upstream debuginfod servers, caching successful responses by URL path.
type Client struct {
	servers []string
	http    *http.Client
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string][]byte
}

// New creates a Client for the given upstream servers, tried in order.
func New(servers []string, logger zerolog.Logger) *Client {
	transport := &http.Transport{}
	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("debuginfod: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Client{
		servers: servers,
		http:    httpClient,
		logger:  logger.With().Str("component", "debuginfod").Logger(),
		cache:   make(map[string][]byte),
	}
}

func urlPath(server, buildID string) string {
	return fmt.Sprintf("%s/buildid/%s/debuginfo", server, buildID)
}

// Get fetches debug info bytes for buildID from the given upstream server,
// returning the cached body if this URL path was fetched before.
func (c *Client) Get(ctx context.Context, server, buildID string) ([]byte, error) {
	path := urlPath(server, buildID)

	c.mu.RLock()
	if cached, ok := c.cache[path]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	var body []byte
	err := retry.Do(ctx, fetchRetry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return xerrors.Wrap(xerrors.Unavailable, err, "build debuginfod request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return xerrors.Wrap(xerrors.Unavailable, err, "DEBUGINFOD_UNAVAILABLE: fetch %s", path)
		}
		defer errors.DeferClose(c.logger, resp.Body, "close debuginfod response body")

		if resp.StatusCode != http.StatusOK {
			return xerrors.New(xerrors.Unavailable, "DEBUGINFOD_UNAVAILABLE: %s returned status %d", path, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return xerrors.Wrap(xerrors.Unavailable, err, "DEBUGINFOD_UNAVAILABLE: read body of %s", path)
		}
		body = data
		return nil
	}, func(err error) bool {
		return xerrors.Is(err, xerrors.Unavailable)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[path] = body
	c.mu.Unlock()

	return body, nil
}

// Exists returns the subset of configured upstreams that answer 200 for
// buildID, preserving server order (spec §4.4).
func (c *Client) Exists(ctx context.Context, buildID string) []string {
	var found []string
	for _, server := range c.servers {
		if _, err := c.Get(ctx, server, buildID); err == nil {
			found = append(found, server)
		}
	}
	return found
}

// Servers returns the configured upstream list.
func (c *Client) Servers() []string {
	out := make([]string, len(c.servers))
	copy(out, c.servers)
	return out
}
