// Package httpapi is the small read-only status service (spec
// section 6): an HTML summary, JSON proxy/URL listings, a per-id
// success-rate lookup, and the built-in azenv judge endpoint used for
// self-testing the anonymity probe. It additively carries a
// /metrics endpoint and a /ws live feed of tester-pool stats, grounded
// on the teacher's web.go websocket broadcaster (worker stats, not
// request routing, are the thing being broadcast here).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
	"github.com/grishkovelli/proxytools/internal/tester"
)

const (
	maxLimit  = 1000
	maxAgeCap = 86400 * time.Second
)

// Server serves the status routes over Store, broadcasting Pool
// snapshots to any connected /ws client at the interval passed to
// ListenAndServe.
type Server struct {
	Store Store
	Pool  *tester.Pool
	Log   *zap.Logger

	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex

	testsSeen prometheus.Counter
	probeOK   prometheus.Counter
	probeFail prometheus.Counter

	lastTested int64
	lastOK     int64
	lastFailed int64
}

// Store is the subset of store.Store the status routes need.
type Store interface {
	Proxy(ctx context.Context, id int64) (*model.Proxy, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	GetValid(ctx context.Context, limit int, maxAge time.Duration, protocols []model.Protocol, excludeCountries []string) ([]model.Proxy, error)
}

func New(s store.Store, pool *tester.Pool, log *zap.Logger) *Server {
	srv := &Server{
		Store:   s,
		Pool:    pool,
		Log:     log,
		clients: make(map[*websocket.Conn]bool),
		testsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxytools_tests_total",
			Help: "Total proxy tests executed by the tester pool.",
		}),
		probeOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxytools_probe_ok_total",
			Help: "Total OK probe outcomes.",
		}),
		probeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxytools_probe_fail_total",
			Help: "Total non-OK probe outcomes.",
		}),
	}
	prometheus.MustRegister(srv.testsSeen, srv.probeOK, srv.probeFail)
	return srv
}

// Mux builds the route table. Exposed separately from ListenAndServe so
// tests can exercise it via httptest without binding a real port.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/proxydata", s.handleProxyData)
	mux.HandleFunc("/proxylist", s.handleProxyList)
	mux.HandleFunc("/proxy/", s.handleProxyByID)
	mux.HandleFunc("/azenv", s.handleAzenv)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe runs the status service until ctx is cancelled,
// additionally publishing tester-pool snapshots to /ws clients every
// statsInterval.
func (s *Server) ListenAndServe(ctx context.Context, addr string, statsInterval time.Duration) error {
	go s.broadcastLoop(ctx, statsInterval)

	srv := &http.Server{Addr: addr, Handler: s.Mux()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Store.CountByStatus(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><h1>proxytools</h1><ul>"))
	for _, status := range []model.Status{model.UNKNOWN, model.TESTING, model.OK, model.TIMEOUT, model.ERROR, model.BANNED} {
		w.Write([]byte("<li>" + status.String() + ": " + strconv.Itoa(counts[status]) + "</li>"))
	}
	w.Write([]byte("</ul></body></html>"))
}

func (s *Server) handleProxyData(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.queryValid(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, proxies)
}

func (s *Server) handleProxyList(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.queryValid(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	urls := make([]string, len(proxies))
	for i, p := range proxies {
		urls[i] = p.URL(false)
	}
	writeJSON(w, urls)
}

func (s *Server) handleProxyByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/proxy/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	proxy, err := s.Store.Proxy(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, proxy.SuccessRate())
}

// handleAzenv echoes request headers in the "KEY = value" line format
// AnonymityJudge.parseJudgeResponse expects, letting the service point
// its own judge list at itself.
func (s *Server) handleAzenv(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	b.WriteString("REMOTE_ADDR = " + remoteIP(r) + "\n")
	b.WriteString("HTTP_USER_AGENT = " + r.Header.Get("User-Agent") + "\n")
	for _, h := range []string{"X-Forwarded-For", "Forwarded", "Client-Ip", "X-Forwarded", "X-Cluster-Client-Ip"} {
		if v := r.Header.Get(h); v != "" {
			b.WriteString("HTTP_" + strings.ToUpper(strings.ReplaceAll(h, "-", "_")) + " = " + v + "\n")
		}
	}
	w.Write([]byte("<pre>" + b.String() + "</pre>"))
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}

func (s *Server) queryValid(r *http.Request) ([]model.Proxy, error) {
	q := r.URL.Query()

	limit := maxLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	maxAge := maxAgeCap
	if v := q.Get("max_age"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		maxAge = time.Duration(n) * time.Second
	}
	if maxAge > maxAgeCap {
		maxAge = maxAgeCap
	}

	var protocols []model.Protocol
	if v := q.Get("protocol"); v != "" {
		proto, err := model.ParseProtocol(v)
		if err != nil {
			return nil, err
		}
		protocols = []model.Protocol{proto}
	}

	var excludeCountries []string
	if v := q.Get("exclude_countries"); v != "" {
		excludeCountries = strings.Split(v, ",")
	}

	return s.Store.GetValid(r.Context(), limit, maxAge, protocols, excludeCountries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
}

func (s *Server) broadcastLoop(ctx context.Context, interval time.Duration) {
	if s.Pool == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(s.Pool.Snapshot())
		}
	}
}

func (s *Server) broadcast(stats tester.Stats) {
	s.testsSeen.Add(float64(stats.Tested - s.lastTested))
	s.probeOK.Add(float64(stats.OK - s.lastOK))
	s.probeFail.Add(float64(stats.Failed - s.lastFailed))
	s.lastTested, s.lastOK, s.lastFailed = stats.Tested, stats.OK, stats.Failed

	msg, err := json.Marshal(stats)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}
