// Package geoip resolves an IP address to a two-letter country code.
// The original downloads and periodically refreshes an IP2Location
// binary database; SPEC_FULL.md marks that downloader machinery out of
// scope, so Lookup instead works off a pre-built table supplied at
// construction (e.g. loaded once from a local IP2Location CSV export),
// with an LRU cache in front of it since the same egress IPs get
// re-resolved across repeated proxy tests.
package geoip

import (
	"encoding/csv"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Range is one contiguous IP block mapped to a country, the shape an
// IP2Location CSV export provides.
type Range struct {
	From    net.IP
	To      net.IP
	Country string
}

// Table resolves an IP to a country by linear range scan, cached by an
// LRU so repeated lookups of the same address (the common case: proxies
// get re-tested far more often than new ones appear) skip the scan.
type Table struct {
	ranges []Range
	cache  *lru.Cache

	mu sync.RWMutex
}

// New builds a Table from ranges, which need not be sorted. cacheSize
// bounds the LRU (spec 10's ambient-stack allowance for a bounded
// cache, grounded on ddelange-serving's use of hashicorp/golang-lru).
func New(ranges []Range, cacheSize int) (*Table, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Table{ranges: ranges, cache: cache}, nil
}

// Lookup returns the two-letter country code for ip, or "" if no range
// contains it.
func (t *Table) Lookup(ip string) string {
	if v, ok := t.cache.Get(ip); ok {
		return v.(string)
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	t.mu.RLock()
	country := t.scan(parsed)
	t.mu.RUnlock()

	t.cache.Add(ip, country)
	return country
}

func (t *Table) scan(ip net.IP) string {
	for _, r := range t.ranges {
		if ipBetween(ip, r.From, r.To) {
			return r.Country
		}
	}
	return ""
}

func ipBetween(ip, from, to net.IP) bool {
	ip4, from4, to4 := ip.To4(), from.To4(), to.To4()
	if ip4 == nil || from4 == nil || to4 == nil {
		return false
	}
	return cmpIP(ip4, from4) >= 0 && cmpIP(ip4, to4) <= 0
}

// LoadCSV reads an IP2Location LITE DB1 export (ip_from,ip_to,country_code,
// country_name, as dotted-quad-encoded integers) into a slice of Range.
func LoadCSV(path string) ([]Range, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	var ranges []Range
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("geoip: read %s: %w", path, err)
		}
		if len(record) < 3 {
			continue
		}
		from, err1 := strconv.ParseUint(record[0], 10, 32)
		to, err2 := strconv.ParseUint(record[1], 10, 32)
		if err1 != nil || err2 != nil {
			continue
		}
		ranges = append(ranges, Range{
			From:    uintToIP(uint32(from)),
			To:      uintToIP(uint32(to)),
			Country: record[2],
		})
	}
	return ranges, nil
}

func uintToIP(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func cmpIP(a, b net.IP) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
