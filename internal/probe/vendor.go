package probe

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/grishkovelli/proxytools/internal/model"
)

// versionPattern matches a dotted version string like "0.245.2", the
// same shape the original's PoGoAPI test learns via validate().
var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// VendorVersionProbe is a "vendor-specific API" probe (spec 4.4: "A
// plain-text version endpoint... Response contains the expected current
// version string (learned at validation)"), grounded on the original's
// PoGoAPI test.
type VendorVersionProbe struct {
	Client *Client
	URL    string

	version string
}

func NewVendorVersionProbe(client *Client, url string) *VendorVersionProbe {
	return &VendorVersionProbe{Client: client, URL: url}
}

func (v *VendorVersionProbe) Name() string                     { return "vendor-version" }
func (v *VendorVersionProbe) AppliesTo(proxy *model.Proxy) bool { return true }

func (v *VendorVersionProbe) Validate(ctx context.Context) error {
	resp, test := v.Client.Do(ctx, nil, v.URL, nil)
	if test != nil {
		return &ValidateError{Probe: v.Name(), Info: test.Info}
	}
	match := versionPattern.Find(resp.Body)
	if match == nil {
		return &ValidateError{Probe: v.Name(), Info: "no version string found in response"}
	}
	v.version = string(match)
	return nil
}

func (v *VendorVersionProbe) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	resp, test := v.Client.Do(ctx, proxy, v.URL, nil)
	if test != nil {
		return *test
	}
	latency := int(resp.Latency.Milliseconds())
	if v.version != "" && !strings.Contains(string(resp.Body), v.version) {
		return model.ProxyTest{Status: model.ERROR, Info: "Version string mismatch", Latency: latency}
	}
	return model.ProxyTest{Status: model.OK, Info: "Version endpoint reachable", Latency: latency}
}

// VendorSignupProbe is a "vendor-specific sign-up" probe (spec 4.4: "An
// HTML page... Title matches a known literal"), grounded on the
// original's PoGoSignup test.
type VendorSignupProbe struct {
	Client *Client
	URL    string
	Title  string
}

func NewVendorSignupProbe(client *Client, url, title string) *VendorSignupProbe {
	return &VendorSignupProbe{Client: client, URL: url, Title: title}
}

func (v *VendorSignupProbe) Name() string                     { return "vendor-signup" }
func (v *VendorSignupProbe) AppliesTo(proxy *model.Proxy) bool { return true }

func (v *VendorSignupProbe) Validate(ctx context.Context) error {
	resp, test := v.Client.Do(ctx, nil, v.URL, nil)
	if test != nil {
		return &ValidateError{Probe: v.Name(), Info: test.Info}
	}
	if extractTitle(resp.Body) != v.Title {
		return &ValidateError{Probe: v.Name(), Info: "unexpected sign-up page title"}
	}
	return nil
}

func (v *VendorSignupProbe) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	resp, test := v.Client.Do(ctx, proxy, v.URL, nil)
	if test != nil {
		return *test
	}
	latency := int(resp.Latency.Milliseconds())
	if extractTitle(resp.Body) != v.Title {
		return model.ProxyTest{Status: model.ERROR, Info: "Unexpected sign-up page title", Latency: latency}
	}
	return model.ProxyTest{Status: model.OK, Info: "Sign-up page reachable", Latency: latency}
}

// VendorLoginProbe is a "vendor-specific login" probe (spec 4.4: "A JSON
// endpoint... Response has both lt and execution keys"), grounded on the
// original's PoGoLogin test.
type VendorLoginProbe struct {
	Client *Client
	URL    string
}

func NewVendorLoginProbe(client *Client, url string) *VendorLoginProbe {
	return &VendorLoginProbe{Client: client, URL: url}
}

func (v *VendorLoginProbe) Name() string                     { return "vendor-login" }
func (v *VendorLoginProbe) AppliesTo(proxy *model.Proxy) bool { return true }

func (v *VendorLoginProbe) Validate(ctx context.Context) error {
	resp, test := v.Client.Do(ctx, nil, v.URL, nil)
	if test != nil {
		return &ValidateError{Probe: v.Name(), Info: test.Info}
	}
	if !hasLoginKeys(resp.Body) {
		return &ValidateError{Probe: v.Name(), Info: "login response missing lt/execution keys"}
	}
	return nil
}

func (v *VendorLoginProbe) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	resp, test := v.Client.Do(ctx, proxy, v.URL, nil)
	if test != nil {
		return *test
	}
	latency := int(resp.Latency.Milliseconds())
	if !hasLoginKeys(resp.Body) {
		return model.ProxyTest{Status: model.ERROR, Info: "Missing lt/execution keys", Latency: latency}
	}
	return model.ProxyTest{Status: model.OK, Info: "Login endpoint reachable", Latency: latency}
}

func hasLoginKeys(body []byte) bool {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	_, hasLT := payload["lt"]
	_, hasExec := payload["execution"]
	return hasLT && hasExec
}
