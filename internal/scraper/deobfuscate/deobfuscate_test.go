package deobfuscate_test

import (
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grishkovelli/proxytools/internal/scraper/deobfuscate"
)

func TestDeobfuscate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Deobfuscate Suite")
}

var _ = Describe("Expr", func() {
	It("decodes a char-code array map with a single-digit positive offset", func() {
		// 46,43,47 + 3 -> 49,46,50 -> "1.2" (the offset grammar only allows a
		// single trailing digit, mirroring the original's own regex).
		script := `[46,43,47].map((code)=>String.fromCharCode(code+3)).join("")`
		Expect(deobfuscate.Expr(script)).To(Equal("1.2"))
	})

	It("decodes atob (base64)", func() {
		script := `atob("MTI3")`
		Expect(deobfuscate.Expr(script)).To(Equal("127"))
	})

	It("decodes a reversed digit string", func() {
		script := `"4.3.2.1".split("").reverse().join("")`
		Expect(deobfuscate.Expr(script)).To(Equal("1.2.3.4"))
	})

	It("evaluates add and subtract on bare digits", func() {
		Expect(deobfuscate.Expr("1+1")).To(Equal("2"))
		Expect(deobfuscate.Expr("9-3")).To(Equal("6"))
	})

	It("evaluates repeat, substring and concat", func() {
		Expect(deobfuscate.Expr(`"12".repeat(2)`)).To(Equal("1212"))
		Expect(deobfuscate.Expr(`"12345".substring(1,3)`)).To(Equal("23"))
		Expect(deobfuscate.Expr(`"12".concat("34")`)).To(Equal("1234"))
	})
})

var _ = Describe("Unpack (packer)", func() {
	It("substitutes keyword tokens back into the payload", func() {
		packed := `eval(function(p,a,c,k,e,d){return p}('0.1.2',3,3,'10|20|30'.split('|'),0,{}))`
		out, ok := deobfuscate.Unpack(packed)
		Expect(ok).To(BeTrue())
		Expect(out).To(Equal("10.20.30"))
	})

	It("reports not-ok on a non-packer script", func() {
		_, ok := deobfuscate.Unpack("var x = 1;")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("CrazyXOR", func() {
	It("decodes a port digit by digit (seeded scenario 6: 8080)", func() {
		// Build an assignment script whose variables XOR together to spell
		// each digit of 8080, matching spys.one's pattern of one XOR pair
		// per <font> cell.
		digits := []int{8, 0, 8, 0}
		var script string
		pairs := make([]string, len(digits))
		for i, d := range digits {
			a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
			script += fmt.Sprintf("%s=%d;%s=0;", a, d, b)
			pairs[i] = fmt.Sprintf("(%s^%s)", a, b)
		}
		table := deobfuscate.ParseCrazyXOR(script)

		var port string
		for i := range digits {
			port += deobfuscate.DecodeCrazyXOR(table, pairs[i][1:len(pairs[i])-1])
		}
		Expect(port).To(Equal("8080"))
	})
})
