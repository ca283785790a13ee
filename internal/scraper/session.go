package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// forcelist mirrors the teacher's error-handling surface and
// proxy_scrapper.py's STATUS_FORCELIST: transient statuses worth a
// retry with backoff before giving up.
var forcelist = map[int]bool{413: true, 429: true, 500: true, 502: true, 503: true, 504: true}

// Upstream is the subset of internal/wlpb.Pool a Session needs: pick a
// validated proxy to route a request through, and report whether it
// worked. A nil Upstream means scrape directly.
type Upstream interface {
	Next() *url.URL
	Report(u *url.URL, ok bool)
}

// Session is the shared retrying HTTP client every concrete scraper
// uses, grounded on proxy_scrapper.py's setup_session/make_request.
type Session struct {
	Client        *http.Client
	UserAgent     string
	Retries       int
	BackoffFactor float64
	Timeout       time.Duration
	Upstream      Upstream

	// Limiter caps how often this Session issues requests, so one noisy
	// source never monopolizes outbound bandwidth alongside the others a
	// harvester pass runs concurrently. Nil means unlimited.
	Limiter *rate.Limiter
}

func NewSession(userAgent string, timeout time.Duration, retries int, backoffFactor float64, upstream Upstream) *Session {
	return &Session{
		Client:        &http.Client{},
		UserAgent:     userAgent,
		Retries:       retries,
		BackoffFactor: backoffFactor,
		Timeout:       timeout,
		Upstream:      upstream,
	}
}

// WithRateLimit configures a requests-per-second cap with burst.
func (s *Session) WithRateLimit(requestsPerSecond float64, burst int) *Session {
	s.Limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	return s
}

// Get fetches url with the given referer, retrying on forcelist
// statuses and connection failures.
func (s *Session) Get(ctx context.Context, target, referer string) ([]byte, error) {
	return s.do(ctx, http.MethodGet, target, referer, nil)
}

// PostForm posts an application/x-www-form-urlencoded body.
func (s *Session) PostForm(ctx context.Context, target, referer, body string) ([]byte, error) {
	return s.do(ctx, http.MethodPost, target, referer, strings.NewReader(body))
}

func (s *Session) do(ctx context.Context, method, target, referer string, body io.Reader) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = io.ReadAll(body)
	}

	proxyURL, timeout := s.selectUpstream()

	var lastErr error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(s.BackoffFactor*math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.UserAgent)
		req.Header.Set("Referer", refererOrDefault(referer))
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		client := s.Client
		if proxyURL != nil {
			transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			client = &http.Client{Transport: transport, Timeout: timeout}
		} else if client.Timeout == 0 {
			client = &http.Client{Timeout: timeout}
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			s.reportUpstream(proxyURL, false)
			continue
		}

		if forcelist[resp.StatusCode] {
			resp.Body.Close()
			lastErr = fmt.Errorf("scraper: forcelisted status %d from %s", resp.StatusCode, target)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			s.reportUpstream(proxyURL, false)
			return nil, fmt.Errorf("scraper: unexpected status %d from %s", resp.StatusCode, target)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		s.reportUpstream(proxyURL, true)
		return data, nil
	}
	return nil, fmt.Errorf("scraper: %s %s failed after %d attempts: %w", method, target, s.Retries+1, lastErr)
}

// selectUpstream picks the scraper's own validated upstream proxy, if
// configured, applying the original's "if a proxy is used, triple the
// timeout" rule (proxy_scrapper.py's setup_proxy).
func (s *Session) selectUpstream() (*url.URL, time.Duration) {
	if s.Upstream == nil {
		return nil, s.Timeout
	}
	u := s.Upstream.Next()
	if u == nil {
		return nil, s.Timeout
	}
	return u, s.Timeout * 3
}

func (s *Session) reportUpstream(u *url.URL, ok bool) {
	if s.Upstream != nil && u != nil {
		s.Upstream.Report(u, ok)
	}
}

func refererOrDefault(referer string) string {
	if referer == "" {
		return "https://www.google.com"
	}
	return referer
}
