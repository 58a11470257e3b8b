// Package proxypool holds the outbound proxy endpoints used for scraping and
// hands them out in round-robin order.
package proxypool

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Endpoint is a single outbound proxy.
type Endpoint struct {
	Protocol string // http, https, socks5, socks5h
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the proxy URL including credentials.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{Scheme: e.Protocol, Host: e.Addr()}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// String renders the endpoint for logs. The password is never included.
func (e Endpoint) String() string {
	if e.Username != "" {
		return fmt.Sprintf("%s://%s@%s", e.Protocol, e.Username, e.Addr())
	}
	return fmt.Sprintf("%s://%s", e.Protocol, e.Addr())
}

// Transport builds an HTTP transport that routes through the endpoint.
func (e Endpoint) Transport(dialTimeout time.Duration) (*http.Transport, error) {
	base := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	switch e.Protocol {
	case "http", "https":
		return &http.Transport{
			Proxy:               http.ProxyURL(e.URL()),
			DialContext:         base.DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}, nil
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if e.Username != "" {
			auth = &proxy.Auth{User: e.Username, Password: e.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", e.Addr(), auth, base)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %s: %w", e, err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", e)
		}
		return &http.Transport{
			DialContext:         cd.DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, e.Protocol)
	}
}

// ParseEndpoint parses one proxy definition. Accepted forms:
//
//	host:port
//	host:port:user:pass
//	scheme://[user:pass@]host:port
//
// protocol is used when the definition carries no scheme.
func ParseEndpoint(s, protocol string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, ErrMalformedEndpoint
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
		}
		port, err := parsePort(u.Port())
		if err != nil || u.Hostname() == "" {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedEndpoint, s)
		}
		ep := Endpoint{Protocol: strings.ToLower(u.Scheme), Host: u.Hostname(), Port: port}
		if u.User != nil {
			ep.Username = u.User.Username()
			ep.Password, _ = u.User.Password()
		}
		return ep, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedEndpoint, s)
	}
	port, err := parsePort(parts[1])
	if err != nil || parts[0] == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMalformedEndpoint, s)
	}
	ep := Endpoint{Protocol: protocol, Host: parts[0], Port: port}
	if len(parts) == 4 {
		ep.Username, ep.Password = parts[2], parts[3]
	}
	return ep, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}
