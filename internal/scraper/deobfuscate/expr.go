// Package deobfuscate ports the two obfuscation schemes
// original_source's scrapers encounter in scraped HTML: a small
// JavaScript string-expression evaluator (proxynova.com rotates several
// of these on its IP column) and a XOR pair-table scheme (spys.one).
// They are unrelated techniques operating on unrelated inputs, kept as
// two separate files rather than folded into one "deobfuscator".
package deobfuscate

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
)

var (
	mapcharPattern  = regexp.MustCompile(`\[(.*?)\]\.map\(\(code\).*?\(code([+-])?(\d)?\)\)(\.reverse\(\))?\.join\("\"\)`)
	atobPattern     = regexp.MustCompile(`atob\("(.*?)"\)`)
	reversePattern  = regexp.MustCompile(`"([.\d]*)"\.split\(""\)\.reverse\(\)\.join\("\"\)`)
	addPattern      = regexp.MustCompile(`(\d+)\+(\d+)`)
	subtractPattern = regexp.MustCompile(`(\d+)-(\d+)`)
	repeatPattern   = regexp.MustCompile(`"([.\d]*)"\.repeat\((\d+)\)`)
	substrPattern   = regexp.MustCompile(`"([.\d]*)"\.substring\((.*?)\)`)
	concatPattern   = regexp.MustCompile(`"([.\d]*)"\.concat\("([.\d]*)"\)`)
	quotedDigits    = regexp.MustCompile(`"([.\d]+)"`)
)

// Expr evaluates the small family of obfuscated string expressions the
// original's deobfuscate_js.py recognized: char-code array mapping,
// base64 (atob), string reversal, digit arithmetic, repeat, substring
// and concat - applied in that order, repeating concat until none
// remain, finally stripping the surrounding quotes off a bare digit
// string (the deobfuscated IP literal).
func Expr(script string) string {
	script = mapcharPattern.ReplaceAllStringFunc(script, mapchar)
	script = atobPattern.ReplaceAllStringFunc(script, atob)
	script = reversePattern.ReplaceAllStringFunc(script, reverseQuoted)
	script = addPattern.ReplaceAllStringFunc(script, add)
	script = subtractPattern.ReplaceAllStringFunc(script, subtract)
	script = repeatPattern.ReplaceAllStringFunc(script, repeat)
	script = substrPattern.ReplaceAllStringFunc(script, substring)

	for strings.Contains(script, "concat") {
		next := concatPattern.ReplaceAllStringFunc(script, concat)
		if next == script {
			break
		}
		script = next
	}

	return quotedDigits.ReplaceAllString(script, "$1")
}

func mapchar(s string) string {
	m := mapcharPattern.FindStringSubmatch(s)
	parts := strings.Split(m[1], ",")
	chars := make([]rune, 0, len(parts))
	for _, code := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			continue
		}
		if m[3] != "" {
			delta, _ := strconv.Atoi(m[3])
			if m[2] == "-" {
				n -= delta
			} else if m[2] == "+" {
				n += delta
			}
		}
		chars = append(chars, rune(n))
	}
	if m[4] != "" {
		for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
			chars[i], chars[j] = chars[j], chars[i]
		}
	}
	return `"` + string(chars) + `"`
}

func atob(s string) string {
	m := atobPattern.FindStringSubmatch(s)
	decoded, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return s
	}
	return `"` + string(decoded) + `"`
}

func reverseQuoted(s string) string {
	m := reversePattern.FindStringSubmatch(s)
	r := []rune(m[1])
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return `"` + string(r) + `"`
}

func add(s string) string {
	m := addPattern.FindStringSubmatch(s)
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	return strconv.Itoa(a + b)
}

func subtract(s string) string {
	m := subtractPattern.FindStringSubmatch(s)
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	return strconv.Itoa(a - b)
}

func repeat(s string) string {
	m := repeatPattern.FindStringSubmatch(s)
	n, _ := strconv.Atoi(m[2])
	return `"` + strings.Repeat(m[1], n) + `"`
}

func substring(s string) string {
	m := substrPattern.FindStringSubmatch(s)
	limits := strings.Split(m[2], ",")
	start, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
	r := []rune(m[1])
	end := len(r)
	if len(limits) == 2 {
		end, _ = strconv.Atoi(strings.TrimSpace(limits[1]))
	}
	if start < 0 {
		start = 0
	}
	if end > len(r) {
		end = len(r)
	}
	if start > end {
		start = end
	}
	return `"` + string(r[start:end]) + `"`
}

func concat(s string) string {
	m := concatPattern.FindStringSubmatch(s)
	return `"` + m[1] + m[2] + `"`
}
