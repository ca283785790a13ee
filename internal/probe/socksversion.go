package probe

import (
	"context"
	"net"
	"time"

	"github.com/grishkovelli/proxytools/internal/model"
)

// SOCKSVersion is the SOCKS-version sniff probe: it sends a SOCKS5
// greeting first and, only if that is rejected, a SOCKS4 greeting, then
// reclassifies the proxy's protocol to whichever answered, or demotes it
// to HTTP when both are rejected. Grounded on the original's
// testers/socks_version.py raw-socket handshakes.
type SOCKSVersion struct {
	Timeout time.Duration
}

func NewSOCKSVersion(timeout time.Duration) *SOCKSVersion {
	return &SOCKSVersion{Timeout: timeout}
}

func (s *SOCKSVersion) Name() string { return "socks-version" }

// AppliesTo only runs for proxies already believed to speak some flavor
// of SOCKS; an HTTP-declared proxy has nothing to reclassify.
func (s *SOCKSVersion) AppliesTo(proxy *model.Proxy) bool {
	return proxy.Protocol == model.SOCKS4 || proxy.Protocol == model.SOCKS5
}

// Validate has no remote state to learn; the handshake bytes are fixed
// by the protocol, so there is nothing to self-check against a
// known-good endpoint.
func (s *SOCKSVersion) Validate(ctx context.Context) error { return nil }

func (s *SOCKSVersion) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	start := time.Now()

	if testSOCKS5(proxy.Addr(), s.Timeout) {
		return model.ProxyTest{Status: model.OK, Info: "SOCKS5 handshake accepted", Latency: int(time.Since(start).Milliseconds())}
	}
	if testSOCKS4(proxy.Addr(), s.Timeout) {
		return model.ProxyTest{Status: model.OK, Info: "SOCKS4 handshake accepted", Latency: int(time.Since(start).Milliseconds())}
	}
	return model.ProxyTest{Status: model.ERROR, Info: "SOCKS handshake rejected, demoting to HTTP", Latency: int(time.Since(start).Milliseconds())}
}

// Reclassify returns the protocol Execute's result implies, demoting to
// HTTP when neither handshake succeeded.
func Reclassify(test model.ProxyTest) model.Protocol {
	switch test.Info {
	case "SOCKS5 handshake accepted":
		return model.SOCKS5
	case "SOCKS4 handshake accepted":
		return model.SOCKS4
	default:
		return model.HTTP
	}
}

func testSOCKS5(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	// Version 5, 1 auth method, no-auth (0x00).
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return false
	}
	resp := make([]byte, 2)
	if _, err := readFull(conn, resp); err != nil {
		return false
	}
	return resp[0] == 0x05 && resp[1] == 0x00
}

func testSOCKS4(addr string, timeout time.Duration) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return false
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	req := []byte{0x04, 0x01, 0x00, 0x50} // CONNECT, port 80
	req = append(req, ip.To4()...)
	req = append(req, 0x00)
	if _, err := conn.Write(req); err != nil {
		return false
	}
	resp := make([]byte, 8)
	if _, err := readFull(conn, resp); err != nil {
		return false
	}
	return resp[0] == 0x00 && resp[1] == 0x5A
}
