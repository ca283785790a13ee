package probe_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/probe"
)

func TestProbe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Probe Suite")
}

// mockForwardProxy behaves like a real HTTP forward proxy: for a GET
// request built with http.ProxyURL, the request line carries the
// absolute target URI, which this handler re-requests and relays back -
// the same "actually forwards" style the teacher's own mockProxyServer
// uses in worker_test.go.
func mockForwardProxy() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.String()
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		req.Header = r.Header.Clone()
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
}

func proxyModelFromURL(srvURL string) *model.Proxy {
	u, err := url.Parse(srvURL)
	if err != nil {
		panic(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		panic(err)
	}
	port, _ := strconv.Atoi(portStr)
	return &model.Proxy{IP: host, Port: uint16(port), Protocol: model.HTTP}
}

var _ = Describe("AnonymityJudge", func() {
	It("passes a proxy that does not leak the local IP and echoes the UA (seeded scenario 3)", func() {
		judge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "REMOTE_ADDR = 5.6.7.8\nUSER_AGENT = %s\n", r.Header.Get("User-Agent"))
		}))
		defer judge.Close()
		proxy := mockForwardProxy()
		defer proxy.Close()

		client := &probe.Client{Retries: 0, BackoffFactor: 0.1, Timeout: 2 * time.Second, UserAgents: probe.NewFixedAgentPool("fixed-agent")}
		a := probe.NewAnonymityJudge(client, []string{judge.URL})

		// Validate learns the tester's own public IP directly (no proxy).
		validateJudge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "REMOTE_ADDR = 9.9.9.9\n")
		}))
		defer validateJudge.Close()
		a.Judges = []string{validateJudge.URL}
		Expect(a.Validate(context.Background())).To(Succeed())
		a.Judges = []string{judge.URL}

		test := a.Execute(context.Background(), proxyModelFromURL(proxy.URL))
		Expect(test.Status).To(Equal(model.OK))
		Expect(test.Info).To(Equal("Anonymous proxy"))
	})

	It("fails a proxy whose response leaks the tester's local IP (seeded scenario 2)", func() {
		judge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "REMOTE_ADDR = 9.9.9.9\n")
		}))
		defer judge.Close()
		proxy := mockForwardProxy()
		defer proxy.Close()

		client := &probe.Client{Retries: 0, BackoffFactor: 0.1, Timeout: 2 * time.Second, UserAgents: probe.NewFixedAgentPool("fixed-agent")}
		a := probe.NewAnonymityJudge(client, []string{judge.URL})
		a.Judges = []string{judge.URL}
		Expect(a.Validate(context.Background())).To(Succeed())

		test := a.Execute(context.Background(), proxyModelFromURL(proxy.URL))
		Expect(test.Status).To(Equal(model.ERROR))
		Expect(test.Info).To(Equal("Non-anonymous proxy"))
	})
})

var _ = Describe("Reachability", func() {
	It("passes when the title matches the configured literal", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><head><title>Example</title></head><body></body></html>")
		}))
		defer srv.Close()
		proxy := mockForwardProxy()
		defer proxy.Close()

		client := &probe.Client{Retries: 0, BackoffFactor: 0.1, Timeout: 2 * time.Second, UserAgents: probe.NewFixedAgentPool("ua")}
		r := probe.NewReachability(client, srv.URL, "Example")
		Expect(r.Validate(context.Background())).To(Succeed())

		test := r.Execute(context.Background(), proxyModelFromURL(proxy.URL))
		Expect(test.Status).To(Equal(model.OK))
	})

	It("fails when the title does not match", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html><head><title>Something Else</title></head></html>")
		}))
		defer srv.Close()
		proxy := mockForwardProxy()
		defer proxy.Close()

		client := &probe.Client{Retries: 0, BackoffFactor: 0.1, Timeout: 2 * time.Second, UserAgents: probe.NewFixedAgentPool("ua")}
		r := probe.NewReachability(client, srv.URL, "Example")
		test := r.Execute(context.Background(), proxyModelFromURL(proxy.URL))
		Expect(test.Status).To(Equal(model.ERROR))
	})
})

var _ = Describe("AgentPool", func() {
	It("returns a fixed agent when constructed with NewFixedAgentPool", func() {
		p := probe.NewFixedAgentPool("always-this")
		Expect(p.Get()).To(Equal("always-this"))
		Expect(p.Get()).To(Equal("always-this"))
	})

	It("returns a non-empty agent string for every family", func() {
		for _, f := range []probe.Family{probe.FamilyRandom, probe.FamilyChrome, probe.FamilyFirefox, probe.FamilySafari} {
			p := probe.NewAgentPool(f)
			Expect(p.Get()).NotTo(BeEmpty())
		}
	})
})
