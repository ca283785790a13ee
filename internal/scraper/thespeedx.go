package scraper

import "context"

// TheSpeedX downloads one of TheSpeedX/SOCKS-List's raw GitHub text
// files, grounded on original_source/app/proxytools/scrappers/
// thespeedx.py.
type TheSpeedX struct {
	Session *Session
	name    string
	file    string // "http.txt", "socks4.txt" or "socks5.txt"
}

func NewTheSpeedX(session *Session, name, file string) *TheSpeedX {
	return &TheSpeedX{Session: session, name: name, file: file}
}

func (t *TheSpeedX) Name() string { return t.name }

func (t *TheSpeedX) Scrape(ctx context.Context) ([]string, error) {
	url := "https://raw.githubusercontent.com/TheSpeedX/SOCKS-List/master/" + t.file
	body, err := t.Session.Get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	return splitLines(string(body)), nil
}
