package probe

import (
	"fmt"
	"math/rand"
)

// Family selects which browser/platform combinations AgentPool draws
// from, matching spec section 6's "User-agent family {random, chrome,
// firefox, safari}" and the original's UserAgent.generate(browser).
type Family string

const (
	FamilyRandom  Family = "random"
	FamilyChrome  Family = "chrome"
	FamilyFirefox Family = "firefox"
	FamilySafari  Family = "safari"
)

var platforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

var templates = map[Family][]string{
	FamilyChrome: {
		"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	},
	FamilyFirefox: {
		"Mozilla/5.0 (%s; rv:125.0) Gecko/20100101 Firefox/125.0",
	},
	FamilySafari: {
		"Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	},
}

// AgentPool rotates user-agent strings from a small pool keyed by
// platform/browser (spec 4.3: "a base header set including a rotated
// user-agent (from a small pool keyed by platform/browser)").
type AgentPool struct {
	family Family
	fixed  string // when set, Get always returns this (used by tests)
}

func NewAgentPool(family Family) *AgentPool {
	if family == "" {
		family = FamilyRandom
	}
	return &AgentPool{family: family}
}

// NewFixedAgentPool always returns agent, used by tests that need a
// deterministic User-Agent to assert an echoed value against.
func NewFixedAgentPool(agent string) *AgentPool {
	return &AgentPool{fixed: agent}
}

// Get returns one user-agent string, randomly chosen according to Family.
func (p *AgentPool) Get() string {
	if p.fixed != "" {
		return p.fixed
	}
	family := p.family
	if family == FamilyRandom {
		families := []Family{FamilyChrome, FamilyFirefox, FamilySafari}
		family = families[rand.Intn(len(families))]
	}
	tpls := templates[family]
	tpl := tpls[rand.Intn(len(tpls))]
	platform := platforms[rand.Intn(len(platforms))]
	return fmt.Sprintf(tpl, platform)
}
