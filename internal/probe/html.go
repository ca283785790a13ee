package probe

import (
	"strings"

	"golang.org/x/net/html"
)

// extractTitle walks an HTML document looking for the first <title>
// element's text content, used by the reachability and vendor sign-up
// probes (spec 4.4: "Title matches the literal"). Returns "" if none is
// found or the document fails to parse.
func extractTitle(body []byte) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = n.FirstChild.Data
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(title)
}
