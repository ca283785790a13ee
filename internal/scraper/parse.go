package scraper

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grishkovelli/proxytools/internal/model"
)

// ParseLine is the canonical "one raw scraper line -> Proxy" parser,
// grounded on proxy_scrapper.py's parse_proxy: an optional
// "scheme://" prefix selects the protocol (falling back to
// defaultProtocol), an optional "user:pass@" selects credentials, and
// the remainder must be a literal "ip:port".
func ParseLine(line string, defaultProtocol model.Protocol) (model.Proxy, error) {
	line = strings.TrimSpace(line)
	if len(line) < 9 {
		return model.Proxy{}, fmt.Errorf("scraper: line too short: %q", line)
	}

	protocol := defaultProtocol
	if idx := strings.Index(line, "://"); idx >= 0 {
		scheme, rest := line[:idx], line[idx+3:]
		p, err := model.ParseProtocol(scheme)
		if err != nil {
			return model.Proxy{}, err
		}
		protocol = p
		line = rest
	}

	var username, password string
	if idx := strings.Index(line, "@"); idx >= 0 {
		auth, rest := line[:idx], line[idx+1:]
		parts := strings.SplitN(auth, ":", 2)
		if len(parts) != 2 {
			return model.Proxy{}, fmt.Errorf("scraper: bad auth in %q", line)
		}
		username, password = parts[0], parts[1]
		line = rest
	}

	host, portStr, err := net.SplitHostPort(line)
	if err != nil {
		return model.Proxy{}, fmt.Errorf("scraper: missing port in %q: %w", line, err)
	}
	if net.ParseIP(host) == nil {
		return model.Proxy{}, fmt.Errorf("scraper: invalid ip in %q", line)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return model.Proxy{}, fmt.Errorf("scraper: invalid port in %q: %w", line, err)
	}

	return model.Proxy{
		IP:       host,
		Port:     uint16(port),
		Protocol: protocol,
		Username: username,
		Password: password,
	}, nil
}

// ValidateCountry reports whether country should be kept: it must not
// contain any of the configured ignore substrings (proxy_scrapper.py's
// validate_country).
func ValidateCountry(country string, ignore []string) bool {
	country = strings.ToLower(country)
	for _, bad := range ignore {
		if bad != "" && strings.Contains(country, strings.ToLower(bad)) {
			return false
		}
	}
	return true
}
