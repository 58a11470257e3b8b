package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points the --config flag at a file holding validConfig plus
// the given [letterboxd] section for the duration of the test.
func useConfig(t *testing.T, letterboxd string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[letterboxd]\n" + letterboxd + "\n" + validConfig
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
}

func liveProxyAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().String()
}

func deadProxyAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func runCheck(t *testing.T) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := runProxiesCheck(cmd, nil)
	return out.String(), err
}

func TestRunProxiesCheck_Reachable(t *testing.T) {
	useConfig(t, fmt.Sprintf(`proxies = [%q, %q]
proxy_protocol = "http"
proxy_check_timeout = "2s"
allow_direct_fallback = false`, liveProxyAddr(t), deadProxyAddr(t)))

	out, err := runCheck(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Reachable proxies (1/2)")
	assert.NotContains(t, out, "No proxy reachable")
}

func TestRunProxiesCheck_AllDeadWithoutFallback(t *testing.T) {
	useConfig(t, fmt.Sprintf(`proxies = [%q]
proxy_protocol = "http"
proxy_check_timeout = "2s"
allow_direct_fallback = false`, deadProxyAddr(t)))

	out, err := runCheck(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direct fallback is disabled")
	assert.Contains(t, out, "Reachable proxies (0/1)")
}

func TestRunProxiesCheck_AllDeadWithFallback(t *testing.T) {
	useConfig(t, fmt.Sprintf(`proxies = [%q]
proxy_protocol = "http"
proxy_check_timeout = "2s"`, deadProxyAddr(t)))

	out, err := runCheck(t)
	require.NoError(t, err)
	assert.Contains(t, out, "scraping will use direct connections")
}

func TestRunProxiesCheck_NoneConfigured(t *testing.T) {
	useConfig(t, "")

	out, err := runCheck(t)
	require.NoError(t, err)
	assert.Equal(t, "No proxies configured\n", out)
}
