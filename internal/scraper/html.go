package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// parseHTML is the shared entry point every HTML-table scraper uses in
// place of the original's BeautifulSoup(html, 'html.parser').
func parseHTML(body []byte) (*html.Node, error) {
	return html.Parse(strings.NewReader(string(body)))
}

// findAll walks doc collecting every element node whose tag matches
// name, optionally filtered by an attribute value.
func findAll(doc *html.Node, name string, attr, attrValue string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == name {
			if attr == "" || attrEquals(n, attr, attrValue) {
				out = append(out, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func attrEquals(n *html.Node, key, value string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.Contains(a.Val, value)
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// text concatenates all descendant text nodes, equivalent to
// BeautifulSoup's get_text().
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// rawHTML returns the text of n's first child when that child is a text
// node (else ""), used to pull the literal contents of an inline <script>
// block (n.FirstChild.Data already holds raw JS for a script tag, since
// html.Parse treats script bodies as text).
func rawHTML(n *html.Node) string {
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		return n.FirstChild.Data
	}
	return ""
}
