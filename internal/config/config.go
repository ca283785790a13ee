// Package config parses the CLI surface described in spec section 6,
// applies the floors and output-disable conventions from the original's
// check_configuration, and binds the five database options from the
// environment via envconfig.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/grishkovelli/proxytools/internal/model"
)

// DBConfig holds the five options overridable by environment variables
// (spec section 6: "Environment variables override the five database
// options"), with the PROXYTOOLS_DB_ prefix.
type DBConfig struct {
	Name     string `envconfig:"NAME" default:"proxytools"`
	User     string `envconfig:"USER" default:"proxytools"`
	Password string `envconfig:"PASSWORD" default:""`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
}

// Config is the fully resolved, validated process configuration.
type Config struct {
	DB             DBConfig
	MaxConnections int
	BatchSize      int

	ProxyFile       string
	Scrap           bool
	Protocol        string // http, socks4, socks5, all
	RefreshInterval time.Duration
	ScanInterval    time.Duration
	IgnoreCountries []string

	OutputInterval time.Duration
	OutputLimit    int
	NoProtocol     bool
	HTTPFile       string
	SOCKSFile      string
	KinanCityFile  string
	ProxyChainsFile string
	RocketMapFile  string

	Testers              int
	DisableAnonymity     bool
	TesterRetries        int
	TesterBackoffFactor  float64
	TesterTimeout        time.Duration
	ForceAllProbes       bool
	NoticeInterval       time.Duration

	ScraperRetries       int
	ScraperBackoffFactor float64
	ScraperTimeout       time.Duration
	ScraperUpstreamProxy string

	ProxyJudges  []string
	UserAgent    string // random, chrome, firefox, safari

	GeoIPFile string // IP2Location LITE CSV export; empty disables country lookup

	WebPort int
	Debug   bool
}

const (
	minRefreshInterval = 15 * time.Minute
	minScanInterval    = 5 * time.Minute
	minOutputInterval  = 15 * time.Minute
)

// Parse reads CLI flags from args (typically os.Args[1:]) and environment
// variables, returning a validated Config or an error suitable for a
// fatal exit (spec section 6: "Exit codes: 0 normal, 1 fatal configuration
// ... failure").
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("proxytools", flag.ContinueOnError)

	cfg := &Config{}

	fs.IntVar(&cfg.MaxConnections, "db-max-connections", 20, "maximum storage connections")
	fs.IntVar(&cfg.BatchSize, "db-batch-size", 250, "storage batch size")

	fs.StringVar(&cfg.ProxyFile, "proxy-file", "", "path to a newline-delimited proxy list")
	fs.BoolVar(&cfg.Scrap, "proxy-scrap", false, "enable scraping of upstream sources")
	fs.StringVar(&cfg.Protocol, "protocol", "all", "protocol filter: http, socks4, socks5, all")
	refreshMin := fs.Int("refresh-interval", 180, "harvester refresh interval, minutes (floor 15)")
	scanMin := fs.Int("scan-interval", 60, "tester scan interval, minutes (floor 5)")
	ignoreCountry := fs.String("ignore-country", "china", "comma-separated ISO-3166-1 alpha-2 countries to exclude")

	outputMin := fs.Int("output-interval", 60, "output interval, minutes (floor 15)")
	fs.IntVar(&cfg.OutputLimit, "limit", 100, "maximum proxies per output file")
	fs.BoolVar(&cfg.NoProtocol, "no-protocol", false, "omit scheme prefix in plain output files")
	fs.StringVar(&cfg.HTTPFile, "http", "working_http.txt", "plain HTTP output file ('none'/'false' disables)")
	fs.StringVar(&cfg.SOCKSFile, "socks", "working_socks.txt", "plain SOCKS output file ('none'/'false' disables)")
	fs.StringVar(&cfg.KinanCityFile, "kinancity", "none", "KinanCity bundle output file")
	fs.StringVar(&cfg.ProxyChainsFile, "proxychains", "none", "ProxyChains output file")
	fs.StringVar(&cfg.RocketMapFile, "rocketmap", "none", "RocketMap (SOCKS5-only) output file")

	fs.IntVar(&cfg.Testers, "testers", 50, "number of tester workers")
	fs.BoolVar(&cfg.DisableAnonymity, "disable-anonymity", false, "skip the anonymity judge probe")
	fs.IntVar(&cfg.TesterRetries, "tester-retries", 5, "per-probe HTTP retries")
	fs.Float64Var(&cfg.TesterBackoffFactor, "tester-backoff-factor", 0.5, "retry backoff factor")
	testerTimeoutSec := fs.Int("tester-timeout", 5, "per-probe timeout, seconds")
	fs.BoolVar(&cfg.ForceAllProbes, "tester-force", false, "run every probe even after a non-OK result")
	noticeMin := fs.Int("notice-interval", 1, "stats notice interval, minutes")

	fs.IntVar(&cfg.ScraperRetries, "scrapper-retries", 3, "scraper HTTP retries")
	fs.Float64Var(&cfg.ScraperBackoffFactor, "scrapper-backoff-factor", 0.5, "scraper retry backoff factor")
	scraperTimeoutSec := fs.Int("scrapper-timeout", 5, "scraper timeout, seconds")
	fs.StringVar(&cfg.ScraperUpstreamProxy, "scrapper-proxy", "", "optional upstream proxy URL for scrapers")

	judges := fs.String("proxy-judge", "https://azenv.net/", "comma-separated proxy judge URLs, round-robined")
	fs.StringVar(&cfg.UserAgent, "user-agent", "random", "user-agent family: random, chrome, firefox, safari")

	fs.StringVar(&cfg.GeoIPFile, "geoip-db", "", "path to an IP2Location-style CSV range export; empty disables country lookup")

	fs.IntVar(&cfg.WebPort, "web-port", 5000, "status HTTP service port")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RefreshInterval = floorDuration(time.Duration(*refreshMin)*time.Minute, minRefreshInterval)
	cfg.ScanInterval = floorDuration(time.Duration(*scanMin)*time.Minute, minScanInterval)
	cfg.OutputInterval = floorDuration(time.Duration(*outputMin)*time.Minute, minOutputInterval)
	cfg.TesterTimeout = time.Duration(*testerTimeoutSec) * time.Second
	cfg.ScraperTimeout = time.Duration(*scraperTimeoutSec) * time.Second
	cfg.NoticeInterval = time.Duration(*noticeMin) * time.Minute
	cfg.IgnoreCountries = splitAndTrim(*ignoreCountry)
	cfg.ProxyJudges = splitAndTrim(*judges)

	cfg.HTTPFile = disableSentinel(cfg.HTTPFile)
	cfg.SOCKSFile = disableSentinel(cfg.SOCKSFile)
	cfg.KinanCityFile = disableSentinel(cfg.KinanCityFile)
	cfg.ProxyChainsFile = disableSentinel(cfg.ProxyChainsFile)
	cfg.RocketMapFile = disableSentinel(cfg.RocketMapFile)

	var dbEnv DBConfig
	if err := envconfig.Process("proxytools_db", &dbEnv); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.DB = dbEnv

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants spec section 6/8 name explicitly:
// a proxy source must be configured, the protocol filter must be known,
// max-connections must be positive.
func (c *Config) Validate() error {
	if c.ProxyFile == "" && !c.Scrap {
		return fmt.Errorf("config: one of -proxy-file or -proxy-scrap is required")
	}
	if _, err := protocolsFor(c.Protocol); err != nil {
		return err
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: -db-max-connections must be > 0")
	}
	if c.Testers <= 0 {
		return fmt.Errorf("config: -testers must be > 0")
	}
	return nil
}

// Protocols returns the set of model.Protocol the Protocol filter selects.
func (c *Config) Protocols() []model.Protocol {
	p, _ := protocolsFor(c.Protocol)
	return p
}

func protocolsFor(filter string) ([]model.Protocol, error) {
	switch strings.ToLower(filter) {
	case "all", "":
		return []model.Protocol{model.HTTP, model.SOCKS4, model.SOCKS5}, nil
	case "http":
		return []model.Protocol{model.HTTP}, nil
	case "socks":
		return []model.Protocol{model.SOCKS4, model.SOCKS5}, nil
	case "socks4":
		return []model.Protocol{model.SOCKS4}, nil
	case "socks5":
		return []model.Protocol{model.SOCKS5}, nil
	default:
		return nil, fmt.Errorf("config: unknown -protocol %q", filter)
	}
}

func floorDuration(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}

func disableSentinel(v string) string {
	switch strings.ToLower(v) {
	case "none", "false", "":
		return ""
	default:
		return v
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
