package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/grishkovelli/proxytools/internal/scraper/deobfuscate"
)

// SpysOne scrapes spys.one's anti-scraping-protected proxy list,
// grounded on original_source/app/proxytools/scrappers/spysone.py: a
// first GET recovers a hidden "xx0" form token, a POST with that token
// plus fixed filter parameters returns the real table, and each row's
// port digits are hidden behind a packed XOR pair-table script the
// internal/scraper/deobfuscate package resolves.
type SpysOne struct {
	Session  *Session
	name     string
	url      string
	postData string
}

func NewSpysOne(session *Session, name, url, postData string) *SpysOne {
	return &SpysOne{Session: session, name: name, url: url, postData: postData}
}

func (s *SpysOne) Name() string { return s.name }

var hiddenInputPattern = regexp.MustCompile(`name="xx0"[^>]*value="([^"]*)"`)

func (s *SpysOne) Scrape(ctx context.Context) ([]string, error) {
	html1, err := s.Session.Get(ctx, s.url, s.url)
	if err != nil {
		return nil, err
	}
	token := parseSecretToken(html1)

	postBody := fmt.Sprintf("xx0=%s&%s", token, s.postData)
	html2, err := s.Session.PostForm(ctx, s.url, s.url, postBody)
	if err != nil {
		return nil, err
	}

	doc, err := parseHTML(html2)
	if err != nil {
		return nil, err
	}
	return parseSpysTable(doc), nil
}

func parseSecretToken(body []byte) string {
	m := hiddenInputPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return string(m[1])
}

var portExprPattern = regexp.MustCompile(`\(([\w\d^]+)\)`)

func parseSpysTable(doc *html.Node) []string {
	var lines []string
	table := deobfuscate.CrazyXORTable{}

	for _, script := range findAll(doc, "script", "", "") {
		code := rawHTML(script)
		if code == "" || !strings.Contains(code, "^") || !strings.Contains(code, ";") || !strings.Contains(code, "=") {
			continue
		}
		if unpacked, ok := deobfuscate.Unpack(code); ok {
			code = unpacked
		}
		for k, v := range deobfuscate.ParseCrazyXOR(code) {
			table[k] = v
		}
	}
	if len(table) == 0 {
		return lines
	}

	rows := append(findAll(doc, "tr", "class", "spy1x"), findAll(doc, "tr", "class", "spy1xx")...)
	for i, row := range rows {
		if i == 0 {
			continue // header row, mirrors original's [1:] slice
		}
		cells := findAll(row, "td", "", "")
		if len(cells) != 10 {
			continue
		}

		fonts := findAll(cells[0], "font", "", "")
		if len(fonts) != 1 {
			continue
		}
		scripts := findAll(fonts[0], "script", "", "")
		if len(scripts) != 1 {
			continue
		}
		portScript := rawHTML(scripts[0])

		ip := strings.TrimSpace(firstTextChild(fonts[0]))
		if ip == "" {
			continue
		}

		var digits strings.Builder
		for _, m := range portExprPattern.FindAllStringSubmatch(portScript, -1) {
			digits.WriteString(deobfuscate.DecodeCrazyXOR(table, m[1]))
		}
		port := digits.String()
		if port == "" {
			continue
		}

		anonymous := strings.TrimSpace(text(cells[2]))
		if anonymous != "ANM" && anonymous != "HIA" {
			continue
		}

		lines = append(lines, ip+":"+port)
	}
	return lines
}

// firstTextChild returns the first direct text-node child's data, which
// for spys.one's <font>IP<script>...</script></font> cell is the bare
// IP literal before the port-decoding script.
func firstTextChild(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return c.Data
		}
	}
	return ""
}
