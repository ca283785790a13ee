// Package scraper implements spec 4.7/4.8: one Scraper per upstream
// proxy-list source, a shared retrying HTTP session that can optionally
// route through an already-validated proxy (internal/wlpb), and the
// canonical line parser shared by every concrete scraper.
//
// Grounded on the teacher's fetchProxies (worker.go) generalized from a
// flat list of newline-delimited sources into the three source families
// (HTML table, JSON API, plain list) original_source/app/proxytools/
// scrappers implements.
package scraper

import (
	"context"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Scraper produces raw proxy address lines (either "ip:port" or
// "scheme://[user:pass@]ip:port") from one upstream source.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) ([]string, error)
}

// Result pairs a scraper's name with what it produced, for harvester
// logging and per-source counters.
type Result struct {
	Source string
	Lines  []string
	Err    error
}

// Parse turns one scraper's raw lines into Proxy records, silently
// skipping lines that fail to parse (not fatal to the batch; the caller
// sees only the difference between raw and parsed counts).
func Parse(name string, lines []string, defaultProtocol model.Protocol) []model.Proxy {
	out := make([]model.Proxy, 0, len(lines))
	for _, line := range lines {
		p, err := ParseLine(line, defaultProtocol)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
