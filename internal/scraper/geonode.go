package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// geonodePage is the shape of one page of proxylist.geonode.com's API
// response, grounded on original_source/app/proxytools/scrappers/
// geonode.py.
type geonodePage struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
	Data  []struct {
		IP   string `json:"ip"`
		Port string `json:"port"`
	} `json:"data"`
}

// GeoNode paginates through geonode.com's JSON proxy-list API for one
// protocol filter.
type GeoNode struct {
	Session  *Session
	Protocol string // "http%2Chttps", "socks4" or "socks5" query value
}

func NewGeoNode(session *Session, protocol string) *GeoNode {
	return &GeoNode{Session: session, Protocol: protocol}
}

func (g *GeoNode) Name() string { return "geo-node-" + g.Protocol }

func (g *GeoNode) Scrape(ctx context.Context) ([]string, error) {
	base := "https://proxylist.geonode.com/api/proxy-list" +
		"?limit=500&sort_by=lastChecked&sort_type=desc" +
		"&anonymityLevel=elite&anonymityLevel=anonymous&protocols=" + g.Protocol

	var lines []string
	page, totalPages := 1, 1
	for page <= totalPages {
		url := fmt.Sprintf("%s&page=%d", base, page)
		body, err := g.Session.Get(ctx, url, "")
		if err != nil {
			return lines, err
		}
		var resp geonodePage
		if err := json.Unmarshal(body, &resp); err != nil {
			return lines, err
		}
		if page == 1 && resp.Limit > 0 {
			totalPages = int(math.Ceil(float64(resp.Total) / float64(resp.Limit)))
		}
		for _, row := range resp.Data {
			lines = append(lines, row.IP+":"+row.Port)
		}
		page++
	}
	return lines, nil
}
