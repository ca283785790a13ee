package scraper

import (
	"context"
	"regexp"
)

// OpenProxySpace extracts ip:port pairs out of openproxy.space's inline
// Nuxt hydration script, grounded on original_source/app/proxytools/
// scrappers/openproxy.py.
type OpenProxySpace struct {
	Session *Session
	name    string
	path    string // "http", "socks4" or "socks5"
}

func NewOpenProxySpace(session *Session, name, path string) *OpenProxySpace {
	return &OpenProxySpace{Session: session, name: name, path: path}
}

func (o *OpenProxySpace) Name() string { return o.name }

var nuxtProxyPattern = regexp.MustCompile(`"(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d{1,4})"`)

func (o *OpenProxySpace) Scrape(ctx context.Context) ([]string, error) {
	url := "https://openproxy.space/list/" + o.path
	body, err := o.Session.Get(ctx, url, url)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, script := range findAll(doc, "script", "", "") {
		code := rawHTML(script)
		if len(code) < len("window.__NUXT__") || code[:len("window.__NUXT__")] != "window.__NUXT__" {
			continue
		}
		for _, m := range nuxtProxyPattern.FindAllStringSubmatch(code, -1) {
			lines = append(lines, m[1]+":"+m[2])
		}
	}
	return lines, nil
}
