// Package fetch issues single outbound page requests with browser-like
// headers, jittered pacing and optional proxy routing.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vmunix/watchsync/internal/proxypool"
)

const maxBodySize = 8 << 20

// Options configures a Fetcher.
type Options struct {
	Timeout             time.Duration
	MinDelay            time.Duration
	MaxDelay            time.Duration
	RequestsPerSecond   float64 // 0 disables the limiter
	AllowDirectFallback bool
}

// Fetcher retrieves and parses HTML pages. It is safe for concurrent use.
type Fetcher struct {
	opts    Options
	direct  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(opts Options, log *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	f := &Fetcher{
		opts:    opts,
		direct:  &http.Client{Timeout: opts.Timeout},
		log:     log.With("component", "fetch"),
		clients: make(map[string]*http.Client),
		sleep:   sleepCtx,
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Fetch GETs rawURL, through ep when it is non-nil, and parses the body as
// HTML. Failures are returned as *TransportError. When the proxied attempt
// fails and direct fallback is allowed, the request is retried once without
// a proxy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, ep *proxypool.Endpoint) (*Document, error) {
	if err := f.pace(ctx); err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if ep == nil {
		return f.do(ctx, f.direct, rawURL)
	}

	client, err := f.clientFor(*ep)
	if err == nil {
		var doc *Document
		doc, err = f.do(ctx, client, rawURL)
		if err == nil {
			return doc, nil
		}
	} else {
		err = &TransportError{URL: rawURL, Err: err}
	}

	if !f.opts.AllowDirectFallback || ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn("proxy request failed, retrying direct", "proxy", ep.String(), "url", rawURL, "error", err)
	return f.do(ctx, f.direct, rawURL)
}

func (f *Fetcher) do(ctx context.Context, client *http.Client, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	applyHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	base := resp.Request.URL
	if base == nil {
		base, _ = url.Parse(rawURL)
	}
	doc, err := Parse(io.LimitReader(resp.Body, maxBodySize), base)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return doc, nil
}

func (f *Fetcher) clientFor(ep proxypool.Endpoint) (*http.Client, error) {
	key := ep.URL().String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c, nil
	}
	tr, err := ep.Transport(f.opts.Timeout)
	if err != nil {
		return nil, err
	}
	c := &http.Client{Timeout: f.opts.Timeout, Transport: tr}
	f.clients[key] = c
	return c, nil
}

// pace waits for the rate limiter and then sleeps a random duration in
// [MinDelay, MaxDelay].
func (f *Fetcher) pace(ctx context.Context) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	d := jitter(f.opts.MinDelay, f.opts.MaxDelay)
	if d <= 0 {
		return ctx.Err()
	}
	return f.sleep(ctx, d)
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
