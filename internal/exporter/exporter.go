// Package exporter periodically writes the current set of valid
// proxies to one or more output files in the formats downstream
// consumers expect, mirroring app.py's output()/export*() family:
// a plain list (optionally scheme-prefixed), a KinanCity bracketed
// list, a ProxyChains config fragment, and a RocketMap plain SOCKS5
// list.
package exporter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
)

// Target is one configured output file plus the query it is populated
// from.
type Target struct {
	Path             string
	Format           Format
	Protocols        []model.Protocol
	ExcludeCountries []string
	NoProtocol       bool // plain-list only: omit the scheme:// prefix
}

// Format selects how a Target's proxy list is serialized.
type Format int

const (
	// FormatPlain writes one URL (or bare ip:port) per line.
	FormatPlain Format = iota
	// FormatKinanCity writes a single-line `[url,url,...]` bracketed list.
	FormatKinanCity
	// FormatProxyChains writes one "scheme ip port [user pass]" line per proxy.
	FormatProxyChains
)

// Exporter periodically re-queries storage and rewrites every
// configured Target file, the way app.py's main loop calls output()
// on args.output_interval.
type Exporter struct {
	Store   store.Store
	Targets []Target
	Limit   int
	MaxAge  time.Duration
	Log     *zap.Logger
}

func New(s store.Store, targets []Target, limit int, maxAge time.Duration, log *zap.Logger) *Exporter {
	return &Exporter{Store: s, Targets: targets, Limit: limit, MaxAge: maxAge, Log: log}
}

// Run writes every target once immediately, then again on each tick
// until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	e.pass(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pass(ctx)
		}
	}
}

func (e *Exporter) pass(ctx context.Context) {
	for _, target := range e.Targets {
		if err := e.writeTarget(ctx, target); err != nil {
			e.Log.Warn("export failed", zap.String("path", target.Path), zap.Error(err))
		}
	}
}

func (e *Exporter) writeTarget(ctx context.Context, target Target) error {
	proxies, err := e.Store.GetValid(ctx, e.Limit, e.MaxAge, target.Protocols, target.ExcludeCountries)
	if err != nil {
		return fmt.Errorf("exporter: query valid proxies for %s: %w", target.Path, err)
	}
	if len(proxies) == 0 {
		e.Log.Warn("found no valid proxies for export target", zap.String("path", target.Path))
		return nil
	}

	e.Log.Info("writing proxy export", zap.String("path", target.Path), zap.Int("count", len(proxies)))

	content := render(target.Format, proxies, target.NoProtocol)
	return os.WriteFile(target.Path, []byte(content), 0o644)
}

func render(format Format, proxies []model.Proxy, noProtocol bool) string {
	switch format {
	case FormatKinanCity:
		return renderKinanCity(proxies)
	case FormatProxyChains:
		return renderLines(proxies, func(p model.Proxy) string { return p.ProxyChainsLine() })
	default:
		return renderLines(proxies, func(p model.Proxy) string { return p.URL(noProtocol) })
	}
}

func renderLines(proxies []model.Proxy, line func(model.Proxy) string) string {
	var b strings.Builder
	for _, p := range proxies {
		b.WriteString(line(p))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderKinanCity mirrors app.py's `'[' + ','.join(urls) + ']'`: a
// single bracketed, comma-joined line of scheme-prefixed URLs.
func renderKinanCity(proxies []model.Proxy) string {
	urls := make([]string, len(proxies))
	for i, p := range proxies {
		urls[i] = p.URL(false)
	}
	return "[" + strings.Join(urls, ",") + "]"
}
