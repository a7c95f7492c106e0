package transfer

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// NewHTTPClient builds the transfer client: proxy (HTTP or SOCKS5) and TLS
// settings come from the network config, no overall timeout is set.
func NewHTTPClient(cfg *types.NetworkConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		Proxy:                 http.ProxyFromEnvironment,
	}

	if cfg != nil && cfg.ProxyURL != "" {
		parsedURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			utils.Debug("Transfer: Invalid proxy URL %s: %v", cfg.ProxyURL, err)
		} else if strings.HasPrefix(parsedURL.Scheme, "socks5") {
			utils.Debug("Transfer: Using SOCKS5 proxy: %s", cfg.ProxyURL)
			var auth *proxy.Auth
			if parsedURL.User != nil {
				pass, _ := parsedURL.User.Password()
				auth = &proxy.Auth{User: parsedURL.User.Username(), Password: pass}
			}
			socks, dialErr := proxy.SOCKS5("tcp", parsedURL.Host, auth, dialer)
			if dialErr != nil {
				utils.Debug("Transfer: Failed to create SOCKS5 dialer: %v", dialErr)
			} else {
				transport.Proxy = nil
				if cd, ok := socks.(proxy.ContextDialer); ok {
					transport.DialContext = cd.DialContext
				} else {
					transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
						return socks.Dial(network, addr)
					}
				}
			}
		} else {
			transport.Proxy = http.ProxyURL(parsedURL)
		}
	}

	if cfg != nil && cfg.SkipTLSVerification {
		utils.Debug("Transfer: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   0,
		Transport: transport,
	}
}
