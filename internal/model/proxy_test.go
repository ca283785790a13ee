package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/model"
)

var _ = Describe("Proxy", func() {
	DescribeTable("URL round-trips through ParseProxyURL",
		func(p model.Proxy) {
			parsed, err := model.ParseProxyURL(p.URL(false))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.IP).To(Equal(p.IP))
			Expect(parsed.Port).To(Equal(p.Port))
			Expect(parsed.Protocol).To(Equal(p.Protocol))
			Expect(parsed.Username).To(Equal(p.Username))
			Expect(parsed.Password).To(Equal(p.Password))
		},
		Entry("http, no credentials", model.Proxy{IP: "1.2.3.4", Port: 8080, Protocol: model.HTTP}),
		Entry("socks5 with credentials", model.Proxy{
			IP: "5.6.7.8", Port: 1080, Protocol: model.SOCKS5,
			Username: "alice", Password: "secret",
		}),
		Entry("socks4, username only", model.Proxy{
			IP: "9.9.9.9", Port: 3128, Protocol: model.SOCKS4, Username: "bob",
		}),
	)

	It("renders a proxychains line with credentials", func() {
		p := model.Proxy{IP: "192.168.67.78", Port: 1080, Protocol: model.SOCKS5, Username: "lamer", Password: "secret"}
		Expect(p.ProxyChainsLine()).To(Equal("socks5 192.168.67.78 1080 lamer secret"))
	})

	It("renders a proxychains line without credentials", func() {
		p := model.Proxy{IP: "192.168.67.78", Port: 1080, Protocol: model.SOCKS5}
		Expect(p.ProxyChainsLine()).To(Equal("socks5 192.168.67.78 1080"))
	})

	It("computes success rate as 1 - fail/test", func() {
		p := model.Proxy{TestCount: 10, FailCount: 3}
		Expect(p.SuccessRate()).To(BeNumerically("~", 0.7, 0.0001))
	})

	It("treats a never-tested proxy as 0 success rate", func() {
		p := model.Proxy{}
		Expect(p.SuccessRate()).To(Equal(0.0))
	})

	It("reports a 0 success rate when every test failed", func() {
		p := model.Proxy{TestCount: 2, FailCount: 2}
		Expect(p.SuccessRate()).To(Equal(0.0))
	})
})
