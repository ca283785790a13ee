package geoip_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/geoip"
)

func TestGeoIP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "GeoIP Suite")
}

var _ = Describe("Table", func() {
	It("resolves an IP within a configured range", func() {
		table, err := geoip.New([]geoip.Range{
			{From: net.ParseIP("1.0.0.0"), To: net.ParseIP("1.255.255.255"), Country: "AU"},
			{From: net.ParseIP("8.8.8.0"), To: net.ParseIP("8.8.8.255"), Country: "US"},
		}, 64)
		Expect(err).NotTo(HaveOccurred())

		Expect(table.Lookup("1.2.3.4")).To(Equal("AU"))
		Expect(table.Lookup("8.8.8.8")).To(Equal("US"))
	})

	It("returns empty string for an IP outside every range", func() {
		table, err := geoip.New([]geoip.Range{
			{From: net.ParseIP("1.0.0.0"), To: net.ParseIP("1.255.255.255"), Country: "AU"},
		}, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Lookup("9.9.9.9")).To(Equal(""))
	})

	It("returns the same country on repeated lookups of the same address", func() {
		table, err := geoip.New([]geoip.Range{
			{From: net.ParseIP("1.0.0.0"), To: net.ParseIP("1.255.255.255"), Country: "AU"},
		}, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Lookup("1.2.3.4")).To(Equal("AU"))
		Expect(table.Lookup("1.2.3.4")).To(Equal("AU"))
	})
})

var _ = Describe("LoadCSV", func() {
	It("parses an IP2Location-style range export", func() {
		path := filepath.Join(GinkgoT().TempDir(), "ranges.csv")
		csv := "16777216,16777471,\"AU\",\"Australia\"\n134744064,134744319,\"US\",\"United States\"\n"
		Expect(os.WriteFile(path, []byte(csv), 0o644)).To(Succeed())

		ranges, err := geoip.LoadCSV(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ranges).To(HaveLen(2))

		table, err := geoip.New(ranges, 64)
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Lookup("1.0.0.5")).To(Equal("AU"))
		Expect(table.Lookup("8.8.8.8")).To(Equal("US"))
	})
})
