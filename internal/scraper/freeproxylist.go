package scraper

import (
	"context"
	"strings"

	"golang.org/x/net/html"
)

// FreeProxyList scrapes free-proxy-list.net's HTML table, grounded on
// original_source/app/proxytools/scrappers/freeproxylist.py.
type FreeProxyList struct {
	Session       *Session
	IgnoreCountry []string
}

func NewFreeProxyList(session *Session, ignoreCountry []string) *FreeProxyList {
	return &FreeProxyList{Session: session, IgnoreCountry: ignoreCountry}
}

func (f *FreeProxyList) Name() string { return "freeproxylist-net" }

func (f *FreeProxyList) Scrape(ctx context.Context) ([]string, error) {
	body, err := f.Session.Get(ctx, "https://free-proxy-list.net", "")
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	return parseFreeProxyListTable(doc, f.IgnoreCountry), nil
}

// parseFreeProxyListTable parses FreeProxyList's 8-column table.
// Socksproxy's page uses the same table shape but is parsed by its own
// loop, since its columns 4 and 5 hold the SOCKS version and anonymity.
func parseFreeProxyListTable(doc *html.Node, ignoreCountry []string) []string {
	var lines []string
	for _, row := range findAll(doc, "tr", "", "") {
		cells := findAll(row, "td", "", "")
		if len(cells) != 8 {
			continue
		}
		ip := strings.TrimSpace(text(cells[0]))
		port := strings.TrimSpace(text(cells[1]))
		country := strings.ToLower(strings.TrimSpace(text(cells[3])))
		status := strings.ToLower(strings.TrimSpace(text(cells[4])))

		if !ValidateCountry(country, ignoreCountry) || status == "transparent" {
			continue
		}
		lines = append(lines, ip+":"+port)
	}
	return lines
}
