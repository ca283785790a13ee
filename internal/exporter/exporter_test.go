package exporter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/grishkovelli/proxytools/internal/exporter"
	"github.com/grishkovelli/proxytools/internal/model"
	"github.com/grishkovelli/proxytools/internal/store"
)

func TestExporter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Exporter Suite")
}

// runOnce runs e with an already-cancelled context: Run writes every
// target once and then returns at its first check of ctx.
func runOnce(e *exporter.Exporter) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(ctx, time.Hour)
}

var _ = Describe("Exporter", func() {
	var (
		mem *store.Memory
		dir string
	)

	BeforeEach(func() {
		mem = store.NewMemory()
		mem.Seed(model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP, Status: model.OK})
		mem.Seed(model.Proxy{IP: "5.6.7.8", Port: 1080, Protocol: model.SOCKS5, Status: model.OK, Username: "u", Password: "p"})
		dir = GinkgoT().TempDir()
	})

	It("writes a plain scheme-prefixed list", func() {
		path := filepath.Join(dir, "http.txt")
		targets := []exporter.Target{
			{Path: path, Format: exporter.FormatPlain, Protocols: []model.Protocol{model.HTTP}},
		}
		e := exporter.New(mem, targets, 100, time.Hour, zap.NewNop())
		runOnce(e)
		Expect(path).To(BeAnExistingFile())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("http://1.2.3.4:8080\n"))
	})

	It("writes a bracketed KinanCity list", func() {
		path := filepath.Join(dir, "kinancity.json")
		targets := []exporter.Target{
			{Path: path, Format: exporter.FormatKinanCity, Protocols: []model.Protocol{model.HTTP}},
		}
		e := exporter.New(mem, targets, 100, time.Hour, zap.NewNop())
		runOnce(e)

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("[http://1.2.3.4:8080]"))
	})

	It("writes a ProxyChains line with embedded credentials", func() {
		path := filepath.Join(dir, "proxychains.conf")
		targets := []exporter.Target{
			{Path: path, Format: exporter.FormatProxyChains, Protocols: []model.Protocol{model.SOCKS5}},
		}
		e := exporter.New(mem, targets, 100, time.Hour, zap.NewNop())
		runOnce(e)

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("socks5 5.6.7.8 1080 u p\n"))
	})

	It("skips writing when no proxies match", func() {
		path := filepath.Join(dir, "empty.txt")
		targets := []exporter.Target{
			{Path: path, Format: exporter.FormatPlain, Protocols: []model.Protocol{model.SOCKS4}},
		}
		e := exporter.New(mem, targets, 100, time.Hour, zap.NewNop())
		runOnce(e)

		Expect(path).NotTo(BeAnExistingFile())
	})
})
