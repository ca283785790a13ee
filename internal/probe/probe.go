package probe

import (
	"context"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Probe is the capability bundle DESIGN NOTES names in place of the
// original's inheritance-based Test(ABC): AppliesTo(proxy), Validate(),
// Execute(proxy) -> test.
type Probe interface {
	Name() string
	// AppliesTo reports whether this probe should run against proxy
	// (spec 4.3 skip_test). Most probes apply unconditionally.
	AppliesTo(proxy *model.Proxy) bool
	// Validate runs the probe without a proxy against a known-good
	// endpoint (spec 4.3: "used at startup to verify the test suite
	// itself works"). It may also learn state later Execute calls rely
	// on (spec section 12: "Validate() learns state").
	Validate(ctx context.Context) error
	// Execute runs the probe through proxy and returns a terminal
	// ProxyTest. It never returns a Go error for a transport/semantic
	// failure - those become a ProxyTest status (spec section 10.3).
	Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest
}

// Pipeline runs an ordered list of probes against one proxy (spec 4.4:
// "reachability first, then anonymity if configured, then vendor
// probes"). By default a non-OK result short-circuits; force continues
// through every probe regardless.
type Pipeline struct {
	Probes []Probe
	Force  bool
}

// Run executes the pipeline, returning every ProxyTest produced (spec
// section 12: "a 3-probe pipeline on one proxy produces up to 3
// ProxyTest rows"). If no probe applied, it synthesizes the placeholder
// the original's execute_tests falls back to.
func (p *Pipeline) Run(ctx context.Context, proxy *model.Proxy) []model.ProxyTest {
	var results []model.ProxyTest
	for _, probe := range p.Probes {
		if !probe.AppliesTo(proxy) {
			continue
		}
		test := probe.Execute(ctx, proxy)
		test.ProxyID = proxy.ID
		results = append(results, test)

		if !p.Force && test.Status != model.OK {
			break
		}
		select {
		case <-ctx.Done():
			return results
		default:
		}
	}
	if len(results) == 0 {
		results = append(results, model.ProxyTest{ProxyID: proxy.ID, Status: model.ERROR, Info: "Not tested"})
	}
	return results
}

// ValidateAll runs Validate on every probe in order and returns the
// first failure (spec 4.6: "runs validate() on every probe; refuses to
// start if any fails").
func (p *Pipeline) ValidateAll(ctx context.Context) error {
	for _, probe := range p.Probes {
		if err := probe.Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}
