package proxypool

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Manager hands out proxies in round-robin order. It is safe for
// concurrent use. An empty Manager means direct connections.
type Manager struct {
	mu        sync.Mutex
	endpoints []Endpoint
	next      int
	log       *slog.Logger
}

// New creates a manager over the given endpoints.
func New(endpoints []Endpoint, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		endpoints: append([]Endpoint(nil), endpoints...),
		log:       log.With("component", "proxypool"),
	}
}

// ParseList parses literal proxy definitions, skipping malformed entries
// with a warning.
func ParseList(defs []string, protocol string, log *slog.Logger) []Endpoint {
	var out []Endpoint
	for _, d := range defs {
		ep, err := ParseEndpoint(d, protocol)
		if err != nil {
			if log != nil {
				log.Warn("skipping proxy", "entry", redact(d), "error", err)
			}
			continue
		}
		out = append(out, ep)
	}
	return out
}

// LoadFile reads one proxy per line from path. Blank lines and lines
// starting with # are ignored. A missing file yields no endpoints.
func LoadFile(fsys afero.Fs, path, protocol string, log *slog.Logger) ([]Endpoint, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if log != nil {
				log.Warn("proxy file not found, using direct connections", "path", path)
			}
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	eps := ParseList(lines, protocol, log)
	if log != nil {
		log.Info("loaded proxies", "path", path, "count", len(eps))
	}
	return eps, nil
}

// Len returns the number of endpoints in the pool.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.endpoints)
}

// Endpoints returns a copy of the pool.
func (m *Manager) Endpoints() []Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Endpoint(nil), m.endpoints...)
}

// Next returns the next endpoint in rotation, or nil when the pool is empty.
func (m *Manager) Next() *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.endpoints) == 0 {
		return nil
	}
	ep := m.endpoints[m.next%len(m.endpoints)]
	m.next = (m.next + 1) % len(m.endpoints)
	return &ep
}

// Dialer opens a TCP connection to a proxy. Tests replace it.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Validate dials every endpoint with a TCP connect and drops the ones that
// fail. Surviving endpoints keep their original order. It returns the number
// of endpoints removed.
func (m *Manager) Validate(ctx context.Context, timeout time.Duration) int {
	d := &net.Dialer{}
	return m.validate(ctx, timeout, d.DialContext)
}

func (m *Manager) validate(ctx context.Context, timeout time.Duration, dial Dialer) int {
	eps := m.Endpoints()
	if len(eps) == 0 {
		return 0
	}

	ok := make([]bool, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, ep := range eps {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			conn, err := dial(pctx, "tcp", ep.Addr())
			if err != nil {
				m.log.Warn("proxy unreachable", "proxy", ep.String(), "error", err)
				return nil
			}
			_ = conn.Close()
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	alive := make([]Endpoint, 0, len(eps))
	for i, ep := range eps {
		if ok[i] {
			alive = append(alive, ep)
		}
	}

	m.mu.Lock()
	m.endpoints = alive
	m.next = 0
	m.mu.Unlock()

	removed := len(eps) - len(alive)
	if len(alive) == 0 {
		m.log.Warn("no working proxies, falling back to direct connections", "checked", len(eps))
	} else {
		m.log.Info("proxies validated", "working", len(alive), "removed", removed)
	}
	return removed
}

func redact(def string) string {
	if i := strings.Index(def, "://"); i >= 0 {
		if at := strings.LastIndex(def, "@"); at > i {
			return def[:i+3] + "***@" + def[at+1:]
		}
		return def
	}
	parts := strings.Split(def, ":")
	if len(parts) == 4 {
		return parts[0] + ":" + parts[1] + ":" + parts[2] + ":***"
	}
	return def
}
