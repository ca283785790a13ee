// Package probe implements spec section 4.3 (the shared probe framework)
// and section 4.4 (the concrete probes). A Probe is the capability bundle
// DESIGN NOTES calls for: AppliesTo/Validate/Execute, replacing the
// original's inheritance-based Test(ABC).
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/grishkovelli/proxytools/internal/model"
)

// statusForcelist triggers a retry rather than an immediate classification
// (spec 4.3: "a status-forcelist {413, 429, 500, 502, 503, 504}").
var statusForcelist = map[int]bool{413: true, 429: true, 500: true, 502: true, 503: true, 504: true}

// statusBanlist is classified as BANNED, matching azenv.py/google.py's
// STATUS_BANLIST.
var statusBanlist = map[int]bool{403: true, 409: true}

// Client is the shared HTTP behavior every probe executes through:
// retry policy, headers, timeout, and transparent HTTP/SOCKS4/SOCKS5
// proxying (spec 4.3).
type Client struct {
	Retries       int
	BackoffFactor float64
	Timeout       time.Duration
	UserAgents    *AgentPool
}

// Response is what reaches a probe's own classifier once the framework
// has ruled out transport and forcelist/banlist outcomes.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Do executes one GET request for url through proxy (nil proxy = direct,
// used by Validate against a known-good endpoint without a proxy). It
// returns either a *Response for the probe's own classifier, or a
// framework-level *model.ProxyTest when the outcome is already terminal
// (spec 4.3 "Error classification (applied by the framework before a
// probe sees the response)").
func (c *Client) Do(ctx context.Context, prox *model.Proxy, target string, extraHeaders http.Header) (*Response, *model.ProxyTest) {
	transport, err := buildTransport(prox, c.Timeout)
	if err != nil {
		return nil, &model.ProxyTest{Status: model.ERROR, Info: "Failed to build proxy transport: " + err.Error()}
	}
	client := &http.Client{Transport: transport, Timeout: c.Timeout}

	headers := c.baseHeaders()
	for k, vs := range extraHeaders {
		for _, v := range vs {
			headers.Set(k, v)
		}
	}

	var lastErr error
	backoff := time.Duration(float64(time.Second) * c.BackoffFactor)
	attempts := c.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, &model.ProxyTest{Status: model.ERROR, Info: "Invalid request: " + err.Error()}
		}
		req.Header = headers.Clone()

		resp, err := client.Do(req)
		latency := time.Since(start)

		if err != nil {
			lastErr = err
			if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
				return nil, &model.ProxyTest{Status: model.TIMEOUT, Info: "Connection timed out", Latency: int(latency.Milliseconds())}
			}
			if attempt < attempts-1 {
				time.Sleep(backoff * time.Duration(1<<attempt))
				continue
			}
			return nil, &model.ProxyTest{Status: model.ERROR, Info: "Failed to connect - " + classifyDialErr(err), Latency: int(latency.Milliseconds())}
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < attempts-1 {
				time.Sleep(backoff * time.Duration(1<<attempt))
				continue
			}
			return nil, &model.ProxyTest{Status: model.ERROR, Info: "Failed to read response", Latency: int(latency.Milliseconds())}
		}

		if statusForcelist[resp.StatusCode] && attempt < attempts-1 {
			time.Sleep(backoff * time.Duration(1<<attempt))
			continue
		}
		if statusBanlist[resp.StatusCode] {
			return nil, &model.ProxyTest{Status: model.BANNED, Info: "Banned status code", Latency: int(latency.Milliseconds())}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &model.ProxyTest{Status: model.ERROR, Info: fmt.Sprintf("Unexpected status code %d", resp.StatusCode), Latency: int(latency.Milliseconds())}
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, &model.ProxyTest{Status: model.ERROR, Info: "Empty response", Latency: int(latency.Milliseconds())}
		}

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, Latency: latency}, nil
	}

	return nil, &model.ProxyTest{Status: model.ERROR, Info: "Request exception: " + errString(lastErr)}
}

func (c *Client) baseHeaders() http.Header {
	h := http.Header{}
	h.Set("Connection", "close")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-GB,en-US;q=0.9,en;q=0.8")
	h.Set("User-Agent", c.UserAgents.Get())
	return h
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyDialErr(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// buildTransport returns an *http.Transport that transparently speaks
// HTTP, SOCKS4 and SOCKS5 as the proxy URL's scheme dictates (spec 4.3:
// "The underlying client must transparently speak HTTP and SOCKS4/5 as
// the URL prefix dictates"). A nil proxy means a direct connection, used
// by Validate.
func buildTransport(prox *model.Proxy, timeout time.Duration) (*http.Transport, error) {
	if prox == nil {
		return &http.Transport{}, nil
	}
	proxyURL, err := prox.ProxyURL()
	if err != nil {
		return nil, err
	}

	switch prox.Protocol {
	case model.HTTP:
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil
	case model.SOCKS5:
		var auth *proxy.Auth
		if prox.Username != "" {
			auth = &proxy.Auth{User: prox.Username, Password: prox.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", prox.Addr(), auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("probe: socks5 dialer: %w", err)
		}
		return &http.Transport{DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}}, nil
	case model.SOCKS4:
		return &http.Transport{DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialSOCKS4(ctx, prox.Addr(), addr, timeout)
		}}, nil
	default:
		return nil, fmt.Errorf("probe: unsupported protocol %s", prox.Protocol)
	}
}
