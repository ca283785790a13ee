package config_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Parse", func() {
	It("raises a refresh interval under the floor to 15 minutes", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-refresh-interval=1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.RefreshInterval.Minutes()).To(Equal(15.0))
	})

	It("raises a scan interval under the floor to 5 minutes", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-scan-interval=1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ScanInterval.Minutes()).To(Equal(5.0))
	})

	It("raises an output interval under the floor to 15 minutes", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-output-interval=1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.OutputInterval.Minutes()).To(Equal(15.0))
	})

	It("disables the http output file on 'none'", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-http=none"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.HTTPFile).To(BeEmpty())
	})

	It("disables the socks output file on 'false'", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-socks=false"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.SOCKSFile).To(BeEmpty())
	})

	It("requires a proxy source", func() {
		_, err := config.Parse([]string{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown protocol filter", func() {
		_, err := config.Parse([]string{"-proxy-scrap", "-protocol=carrier-pigeon"})
		Expect(err).To(HaveOccurred())
	})

	It("splits the ignore-country list", func() {
		cfg, err := config.Parse([]string{"-proxy-scrap", "-ignore-country=china, russia"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.IgnoreCountries).To(Equal([]string{"china", "russia"}))
	})
})
