package proxypool

import "errors"

var (
	// ErrMalformedEndpoint is returned for proxy definitions that cannot be parsed.
	ErrMalformedEndpoint = errors.New("malformed proxy endpoint")

	// ErrUnsupportedProtocol is returned when no transport exists for a proxy scheme.
	ErrUnsupportedProtocol = errors.New("unsupported proxy protocol")
)
