package fetch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/watchsync/internal/proxypool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// deadEndpoint returns an http proxy endpoint on a port nothing listens on.
func deadEndpoint(t *testing.T) *proxypool.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return &proxypool.Endpoint{Protocol: "http", Host: "127.0.0.1", Port: port}
}

func TestFetch_ParsesDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		_, _ = w.Write([]byte(`<html><body><a class="next" href="/page/2/">Next</a></body></html>`))
	}))
	defer server.Close()

	f := New(Options{Timeout: 5 * time.Second}, testLogger())
	doc, err := f.Fetch(context.Background(), server.URL+"/alice/watchlist/", nil)
	require.NoError(t, err)

	next := doc.First(All(Tag("a"), HasClass("next")))
	require.NotNil(t, next)
	href, _ := Attr(next, "href")
	abs, err := doc.Resolve(href)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/page/2/", abs)
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := New(Options{Timeout: 5 * time.Second}, testLogger())
	_, err := f.Fetch(context.Background(), server.URL, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestFetch_ProxyFailureFallsBackDirect(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer server.Close()

	f := New(Options{Timeout: 5 * time.Second, AllowDirectFallback: true}, testLogger())
	doc, err := f.Fetch(context.Background(), server.URL, deadEndpoint(t))
	require.NoError(t, err)
	assert.NotNil(t, doc.First(Tag("body")))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_ProxyFailureWithoutFallback(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	f := New(Options{Timeout: 5 * time.Second}, testLogger())
	_, err := f.Fetch(context.Background(), server.URL, deadEndpoint(t))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.Zero(t, hits.Load())
}

func TestFetch_ClientCachedPerEndpoint(t *testing.T) {
	f := New(Options{Timeout: time.Second}, testLogger())
	ep := proxypool.Endpoint{Protocol: "socks5", Host: "127.0.0.1", Port: 1080}

	c1, err := f.clientFor(ep)
	require.NoError(t, err)
	c2, err := f.clientFor(ep)
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	other, err := f.clientFor(proxypool.Endpoint{Protocol: "socks5", Host: "127.0.0.1", Port: 1081})
	require.NoError(t, err)
	assert.NotSame(t, c1, other)
}

func TestFetch_JitterDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer server.Close()

	f := New(Options{Timeout: time.Second, MinDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}, testLogger())
	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for range 20 {
		_, err := f.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
	}
	require.Len(t, slept, 20)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	f := New(Options{Timeout: time.Second, MinDelay: time.Hour, MaxDelay: time.Hour}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// Validation empties the pool, so every request goes out directly and none
// of them fail.
func TestFetch_PartialOutageRunsDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>` + strings.TrimPrefix(r.URL.Path, "/") + `</body></html>`))
	}))
	defer server.Close()

	pool := proxypool.New([]proxypool.Endpoint{*deadEndpoint(t), *deadEndpoint(t)}, testLogger())
	removed := pool.Validate(context.Background(), time.Second)
	require.Equal(t, 2, removed)

	f := New(Options{Timeout: 5 * time.Second, AllowDirectFallback: true}, testLogger())
	for range 5 {
		_, err := f.Fetch(context.Background(), server.URL+"/film/x/", pool.Next())
		require.NoError(t, err)
	}
}
