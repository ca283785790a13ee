// Command proxytools is the process entry point: it parses configuration,
// opens and migrates storage, wires the five queue workers, the tester
// pool, the harvester pool, the exporter and the status HTTP service, and
// shuts everything down in order on SIGINT/SIGTERM.
//
// Grounded on the teacher's example/main.go top-level wiring, generalized
// from a single Worker.Run call into the multi-pool shutdown sequence
// spec section 5 mandates.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/config"
	"github.com/grishkovelli/proxytools/internal/exporter"
	"github.com/grishkovelli/proxytools/internal/geoip"
	"github.com/grishkovelli/proxytools/internal/harvester"
	"github.com/grishkovelli/proxytools/internal/httpapi"
	"github.com/grishkovelli/proxytools/internal/logging"
	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/probe"
	"github.com/grishkovelli/proxytools/internal/queue"
	"github.com/grishkovelli/proxytools/internal/scraper"
	"github.com/grishkovelli/proxytools/internal/store"
	"github.com/grishkovelli/proxytools/internal/tester"
	"github.com/grishkovelli/proxytools/internal/wlpb"
)

const (
	flushDrainInterval = 250 * time.Millisecond
	pushWait           = 2 * time.Second
	statsInterval      = time.Minute
	upstreamRefresh    = 5 * time.Minute

	// insertNewCapacity stands in for "unbounded" (spec's Insert-new-proxy
	// capacity rule): large enough that a harvest pass never blocks on it
	// in practice, without actually being an unbounded Go channel.
	insertNewCapacity = 100_000

	// harvesterConcurrency bounds how many scrapers run simultaneously
	// per harvest pass.
	harvesterConcurrency = 8

	// geoCacheSize bounds the country-lookup LRU; proxies get re-tested
	// far more often than new egress IPs show up.
	geoCacheSize = 4096
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(logging.Options{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer log.Sync()

	dsn := store.DSN(cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name)
	db, err := store.OpenAndMigrate(dsn, cfg.MaxConnections)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interrupt := &queue.Interrupt{}
	go func() {
		<-ctx.Done()
		interrupt.Set()
	}()

	lockToken := lockToken()
	protocols := cfg.Protocols()

	insertsNew := queue.New("insert-new-proxy", insertNewCapacity, cfg.Testers, cfg.BatchSize, db.InsertBulk, interrupt, log)
	updates := queue.New("update-proxy", 10*cfg.Testers, cfg.Testers, cfg.BatchSize, db.UpdateProxies, interrupt, log)
	proxyTests := queue.New("insert-proxytest", 50*cfg.Testers, cfg.Testers, cfg.BatchSize, db.InsertProxyTests, interrupt, log)
	fetch := queue.NewFetchQueue(2*cfg.Testers, db, lockToken, protocols, cfg.ScanInterval, interrupt, log)
	cleanup := queue.NewCleanupWorker(db, lockToken, interrupt, log)

	pipeline, err := buildPipeline(cfg, log)
	if err != nil {
		return fmt.Errorf("probe pipeline: %w", err)
	}
	if err := pipeline.ValidateAll(ctx); err != nil {
		return fmt.Errorf("probe validation: %w", err)
	}

	geo, err := buildGeoIP(cfg)
	if err != nil {
		return fmt.Errorf("geoip: %w", err)
	}

	pool := tester.NewPool(cfg.Testers, db, fetch, pipeline, updates, proxyTests, pushWait, geo, interrupt, log)

	upstream := wlpb.New(db, protocols, cfg.ScanInterval, cfg.Testers)
	harvesterPool := harvester.New(buildScrapers(cfg, upstream), harvesterConcurrency, insertsNew, pushWait, interrupt, log)

	if cfg.ProxyFile != "" {
		harvesterPool.Entries = append(harvesterPool.Entries, harvester.Entry{
			Scraper:         scraper.NewFileReader(cfg.ProxyFile),
			DefaultProtocol: model.HTTP,
		})
	}

	exp := exporter.New(db, buildExportTargets(cfg), cfg.OutputLimit, cfg.ScanInterval, log)
	status := httpapi.New(db, pool, log)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { insertsNew.Run(ctx, flushDrainInterval) })
	spawn(func() { updates.Run(ctx, flushDrainInterval) })
	spawn(func() { proxyTests.Run(ctx, flushDrainInterval) })
	spawn(func() { fetch.Run(ctx, time.Second) })
	spawn(func() { cleanup.Run(ctx, 5*time.Minute) })
	spawn(func() { upstream.Run(ctx, upstreamRefresh) })
	spawn(func() { pool.Run(ctx) })
	if cfg.Scrap {
		spawn(func() { harvesterPool.Run(ctx, cfg.RefreshInterval) })
	}
	spawn(func() { exp.Run(ctx, cfg.OutputInterval) })
	spawn(func() {
		if err := status.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.WebPort), statsInterval); err != nil {
			log.Error("status service stopped", zap.Error(err))
		}
	})

	log.Info("proxytools started", zap.Int("testers", cfg.Testers), zap.Int("web_port", cfg.WebPort))
	wg.Wait()
	log.Info("proxytools stopped")
	return nil
}

func lockToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func buildPipeline(cfg *config.Config, log *zap.Logger) (*probe.Pipeline, error) {
	client := &probe.Client{
		Retries:       cfg.TesterRetries,
		BackoffFactor: cfg.TesterBackoffFactor,
		Timeout:       cfg.TesterTimeout,
		UserAgents:    probe.NewAgentPool(probe.Family(cfg.UserAgent)),
	}

	probes := []probe.Probe{
		probe.NewReachability(client, "https://www.google.com", "Google"),
	}
	if !cfg.DisableAnonymity {
		probes = append(probes, probe.NewAnonymityJudge(client, cfg.ProxyJudges))
	}
	probes = append(probes, probe.NewSOCKSVersion(cfg.TesterTimeout))

	return &probe.Pipeline{Probes: probes, Force: cfg.ForceAllProbes}, nil
}

// buildGeoIP loads the optional country-lookup table. An empty
// -geoip-db leaves the tester pool's GeoIP nil, which just means proxy
// Country fields stay empty (spec's geolocation is best-effort).
func buildGeoIP(cfg *config.Config) (tester.GeoLookup, error) {
	if cfg.GeoIPFile == "" {
		return nil, nil
	}
	ranges, err := geoip.LoadCSV(cfg.GeoIPFile)
	if err != nil {
		return nil, err
	}
	return geoip.New(ranges, geoCacheSize)
}

// buildScrapers registers one entry per upstream source the original's
// scrappers/ package enumerates, each sharing a Session configured from
// the scraper-specific CLI options. A scraper-own upstream proxy is
// selected in priority order: a single CLI-configured URL first
// (proxy_scrapper.py's setup_proxy), falling back to the dynamic
// validated-proxy pool when no fixed URL was given.
func buildScrapers(cfg *config.Config, dynamicUpstream scraper.Upstream) []harvester.Entry {
	up := scraperUpstream(cfg, dynamicUpstream)
	newSession := func() *scraper.Session {
		return scraper.NewSession(cfg.UserAgent, cfg.ScraperTimeout, cfg.ScraperRetries, cfg.ScraperBackoffFactor, up)
	}

	entries := []harvester.Entry{
		{Scraper: scraper.NewFreeProxyList(newSession(), cfg.IgnoreCountries), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewSocksproxy(newSession(), cfg.IgnoreCountries), DefaultProtocol: model.SOCKS5},
		{Scraper: scraper.NewGeoNode(newSession(), "http%2Chttps"), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewGeoNode(newSession(), "socks5"), DefaultProtocol: model.SOCKS5},
		{Scraper: scraper.NewProxyNova(newSession(), cfg.IgnoreCountries), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewProxyScrape(newSession(), "http", "&proxytype=http"), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewProxyScrape(newSession(), "socks5", "&proxytype=socks5"), DefaultProtocol: model.SOCKS5},
		{Scraper: scraper.NewTheSpeedX(newSession(), "thespeedx-http", "http.txt"), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewTheSpeedX(newSession(), "thespeedx-socks5", "socks5.txt"), DefaultProtocol: model.SOCKS5},
		{Scraper: scraper.NewOpenProxySpace(newSession(), "openproxyspace-http", "http"), DefaultProtocol: model.HTTP},
		{Scraper: scraper.NewOpenProxySpace(newSession(), "openproxyspace-socks5", "socks5"), DefaultProtocol: model.SOCKS5},
		{Scraper: scraper.NewSpysOne(newSession(), "spysone-http", "https://spys.one/en/free-proxy-list/", "xf1=0&xf2=0&xf4=0&xf5=1"), DefaultProtocol: model.HTTP},
	}
	return entries
}

func scraperUpstream(cfg *config.Config, dynamicUpstream scraper.Upstream) scraper.Upstream {
	if cfg.ScraperUpstreamProxy == "" {
		return dynamicUpstream
	}
	u, err := url.Parse(cfg.ScraperUpstreamProxy)
	if err != nil {
		return dynamicUpstream
	}
	return staticUpstream{url: u}
}

// staticUpstream always hands out the same CLI-configured proxy URL and
// ignores failure reports, for operators who'd rather pin one upstream
// than let the dynamic pool pick.
type staticUpstream struct{ url *url.URL }

func (s staticUpstream) Next() *url.URL              { return s.url }
func (s staticUpstream) Report(*url.URL, bool) {}

func buildExportTargets(cfg *config.Config) []exporter.Target {
	var targets []exporter.Target
	if cfg.HTTPFile != "" {
		targets = append(targets, exporter.Target{Path: cfg.HTTPFile, Format: exporter.FormatPlain, Protocols: []model.Protocol{model.HTTP}, ExcludeCountries: cfg.IgnoreCountries, NoProtocol: cfg.NoProtocol})
	}
	if cfg.SOCKSFile != "" {
		targets = append(targets, exporter.Target{Path: cfg.SOCKSFile, Format: exporter.FormatPlain, Protocols: []model.Protocol{model.SOCKS4, model.SOCKS5}, ExcludeCountries: cfg.IgnoreCountries, NoProtocol: cfg.NoProtocol})
	}
	if cfg.KinanCityFile != "" {
		targets = append(targets, exporter.Target{Path: cfg.KinanCityFile, Format: exporter.FormatKinanCity, Protocols: []model.Protocol{model.HTTP}, ExcludeCountries: cfg.IgnoreCountries})
	}
	if cfg.ProxyChainsFile != "" {
		targets = append(targets, exporter.Target{Path: cfg.ProxyChainsFile, Format: exporter.FormatProxyChains, ExcludeCountries: cfg.IgnoreCountries})
	}
	if cfg.RocketMapFile != "" {
		targets = append(targets, exporter.Target{Path: cfg.RocketMapFile, Format: exporter.FormatPlain, Protocols: []model.Protocol{model.SOCKS5}, ExcludeCountries: cfg.IgnoreCountries, NoProtocol: cfg.NoProtocol})
	}
	return targets
}
