package probe

import (
	"context"

	"github.com/grishkovelli/proxytools/internal/model"
)

// Reachability is the generic reachability probe (spec 4.4: "A large,
// stable site whose HTML title is a known literal"), grounded on the
// original's Google test (testers/google.py).
type Reachability struct {
	Client *Client
	URL    string
	Title  string
}

func NewReachability(client *Client, url, title string) *Reachability {
	return &Reachability{Client: client, URL: url, Title: title}
}

func (r *Reachability) Name() string                        { return "reachability" }
func (r *Reachability) AppliesTo(proxy *model.Proxy) bool    { return true }

func (r *Reachability) Validate(ctx context.Context) error {
	resp, test := r.Client.Do(ctx, nil, r.URL, nil)
	if test != nil {
		return &ValidateError{Probe: r.Name(), Info: test.Info}
	}
	if extractTitle(resp.Body) != r.Title {
		return &ValidateError{Probe: r.Name(), Info: "unexpected title from " + r.URL}
	}
	return nil
}

func (r *Reachability) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	resp, test := r.Client.Do(ctx, proxy, r.URL, nil)
	if test != nil {
		return *test
	}
	latency := int(resp.Latency.Milliseconds())
	if extractTitle(resp.Body) != r.Title {
		return model.ProxyTest{Status: model.ERROR, Info: "Unexpected page title", Latency: latency}
	}
	return model.ProxyTest{Status: model.OK, Info: "Reachable", Latency: latency}
}

// ValidateError is returned by Probe.Validate on startup-validation
// failure (spec 4.6: "runs validate() on every probe; refuses to start
// if any fails").
type ValidateError struct {
	Probe string
	Info  string
}

func (e *ValidateError) Error() string { return e.Probe + ": " + e.Info }
