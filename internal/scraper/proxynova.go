package scraper

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/grishkovelli/proxytools/internal/scraper/deobfuscate"
)

// ProxyNova scrapes proxynova.com's two HTML tables, grounded on
// original_source/app/proxytools/scrappers/proxynova.py. Each row's IP
// is hidden behind a rotating JavaScript obfuscation scheme the mini
// expression evaluator (internal/scraper/deobfuscate) resolves.
type ProxyNova struct {
	Session       *Session
	IgnoreCountry []string
}

func NewProxyNova(session *Session, ignoreCountry []string) *ProxyNova {
	return &ProxyNova{Session: session, IgnoreCountry: ignoreCountry}
}

func (p *ProxyNova) Name() string { return "proxynova-com" }

var documentWritePattern = regexp.MustCompile(`document\.write\((.*)\)$`)

func (p *ProxyNova) Scrape(ctx context.Context) ([]string, error) {
	urls := []string{
		"https://www.proxynova.com/proxy-server-list/elite-proxies/",
		"https://www.proxynova.com/proxy-server-list/anonymous-proxies/",
	}

	var lines []string
	for _, u := range urls {
		body, err := p.Session.Get(ctx, u, "https://www.proxynova.com")
		if err != nil {
			continue
		}
		doc, err := parseHTML(body)
		if err != nil {
			continue
		}
		lines = append(lines, p.parsePage(doc)...)
	}
	return lines, nil
}

func (p *ProxyNova) parsePage(doc *html.Node) []string {
	var lines []string
	tbody := firstTbody(doc, "tbl_proxy_list")
	if tbody == nil {
		return lines
	}
	for _, row := range findAll(tbody, "tr", "", "") {
		cells := findAll(row, "td", "", "")
		if len(cells) != 7 {
			continue
		}

		scripts := findAll(cells[0], "script", "", "")
		if len(scripts) == 0 {
			continue
		}
		m := documentWritePattern.FindStringSubmatch(strings.TrimSpace(rawHTML(scripts[0])))
		if m == nil {
			continue
		}
		ip := deobfuscate.Expr(m[1])
		if ip == "" {
			continue
		}

		port := strings.TrimSpace(text(cells[1]))
		country := strings.ToLower(strings.TrimSpace(countryWithoutCity(cells[5])))
		status := strings.ToLower(strings.TrimSpace(text(cells[6])))

		if status == "transparent" || !ValidateCountry(country, p.IgnoreCountry) {
			continue
		}
		lines = append(lines, ip+":"+port)
	}
	return lines
}

// countryWithoutCity returns the country cell's text with any nested
// city <span> excluded, mirroring the original's
// "city = country.find('span'); city.extract()" step.
func countryWithoutCity(cell *html.Node) string {
	links := findAll(cell, "a", "", "")
	if len(links) == 0 {
		return text(cell)
	}
	link := links[0]
	var b strings.Builder
	for c := link.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "span" {
			continue
		}
		b.WriteString(text(c))
	}
	return b.String()
}

func firstTbody(doc *html.Node, tableID string) *html.Node {
	for _, table := range findAll(doc, "table", "id", tableID) {
		if bodies := findAll(table, "tbody", "", ""); len(bodies) > 0 {
			return bodies[0]
		}
	}
	return nil
}
