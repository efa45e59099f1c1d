package util

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// ProxyConfig holds explicit proxy settings. Empty fields fall back to the
// HTTP_PROXY, HTTPS_PROXY and NO_PROXY environment variables.
type ProxyConfig struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// NewProxyFunc creates a proxy function based on configuration.
// If no proxy URLs are provided, falls back to environment variables.
func NewProxyFunc(cfg ProxyConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	env := httpproxy.FromEnvironment()
	resolved := &httpproxy.Config{
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		NoProxy:    cfg.NoProxy,
	}
	if resolved.NoProxy == "" {
		resolved.NoProxy = env.NoProxy
	}
	proxyFor := resolved.ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		return proxyFor(req.URL)
	}
}

// NewHTTPClient returns a client with the given timeout routed through the
// configured proxies. A zero timeout means no client-side deadline.
func NewHTTPClient(timeout time.Duration, cfg ProxyConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = NewProxyFunc(cfg)

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
