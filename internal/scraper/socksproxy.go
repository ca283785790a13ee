package scraper

import (
	"context"
	"strings"
)

// Socksproxy scrapes socks-proxy.net's HTML table, grounded on
// original_source/app/proxytools/scrappers/socksproxy.py. Unlike
// FreeProxyList the version column ("socks4"/"socks5") decides the
// scheme prefix on each emitted line.
type Socksproxy struct {
	Session       *Session
	IgnoreCountry []string
}

func NewSocksproxy(session *Session, ignoreCountry []string) *Socksproxy {
	return &Socksproxy{Session: session, IgnoreCountry: ignoreCountry}
}

func (s *Socksproxy) Name() string { return "socksproxy-net" }

func (s *Socksproxy) Scrape(ctx context.Context) ([]string, error) {
	body, err := s.Session.Get(ctx, "https://www.socks-proxy.net/", "")
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, row := range findAll(doc, "tr", "", "") {
		cells := findAll(row, "td", "", "")
		if len(cells) != 8 {
			continue
		}
		ip := strings.TrimSpace(text(cells[0]))
		port := strings.TrimSpace(text(cells[1]))
		country := strings.ToLower(strings.TrimSpace(text(cells[3])))
		version := strings.ToLower(strings.TrimSpace(text(cells[4])))
		status := strings.ToLower(strings.TrimSpace(text(cells[5])))

		if status == "transparent" || !ValidateCountry(country, s.IgnoreCountry) {
			continue
		}

		if version == "socks4" || version == "socks5" {
			lines = append(lines, version+"://"+ip+":"+port)
		} else {
			lines = append(lines, ip+":"+port)
		}
	}
	return lines, nil
}
