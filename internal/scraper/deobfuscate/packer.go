package deobfuscate

import (
	"regexp"
	"strconv"
	"strings"
)

// packerPattern recognizes the Dean Edwards "packer" payload call --
// eval(function(p,a,c,k,e,d){...}(PAYLOAD,RADIX,COUNT,'w1|w2|...'.split('|'),0,{}))
// -- spys.one wraps its crazyxor decoding script in before the plain
// variable assignments can be parsed.
var packerPattern = regexp.MustCompile(`(?s)\}\('(.*)',(\d+),(\d+),'(.*)'\.split\('\|'\)`)

// Unpack reverses one packer call, substituting each base-radix token
// back to its keyword. Returns ok=false if line isn't a packer call.
func Unpack(line string) (result string, ok bool) {
	m := packerPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	payload := unescape(m[1])
	radix, err := strconv.Atoi(m[2])
	if err != nil {
		return "", false
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return "", false
	}
	keywords := strings.Split(m[4], "|")

	for i := count - 1; i >= 0; i-- {
		if i >= len(keywords) || keywords[i] == "" {
			continue
		}
		token := strconv.FormatInt(int64(i), radix)
		word := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
		payload = word.ReplaceAllString(payload, keywords[i])
	}
	return payload, true
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
