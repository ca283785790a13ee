package scraper

import (
	"context"
	"strings"
)

// ProxyScrape downloads api.proxyscrape.com's plain ip:port list for one
// protocol, grounded on original_source/app/proxytools/scrappers/
// proxyscrape.py.
type ProxyScrape struct {
	Session *Session
	Suffix  string // e.g. "&proxytype=http&timeout=10000&country=all&ssl=all&anonymity=anonymous"
	name    string
}

func NewProxyScrape(session *Session, name, suffix string) *ProxyScrape {
	return &ProxyScrape{Session: session, Suffix: suffix, name: name}
}

func (p *ProxyScrape) Name() string { return p.name }

func (p *ProxyScrape) Scrape(ctx context.Context) ([]string, error) {
	url := "https://api.proxyscrape.com/?request=getproxies" + p.Suffix
	body, err := p.Session.Get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	return splitLines(string(body)), nil
}

func splitLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
