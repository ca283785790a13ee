package probe

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/grishkovelli/proxytools/internal/model"
)

// judgeKeywords are the env-dump markers the original's azenv.py parses
// out of the judge response (REMOTE_ADDR, forwarding headers, etc).
var judgeKeywords = []string{
	"REMOTE_ADDR", "USER_AGENT", "FORWARDED_FOR", "FORWARDED",
	"CLIENT_IP", "X_FORWARDED_FOR", "X_FORWARDED", "X_CLUSTER_CLIENT_IP",
}

// AnonymityJudge is the anonymity probe (spec 4.4 "Anonymity judge"):
// round-robins a configured list of env-dump endpoints, learns the
// tester's own public IP at Validate time, and fails any proxy whose
// response leaks that IP or alters the sent user-agent.
type AnonymityJudge struct {
	Client *Client
	Judges []string

	localIP string
	next    atomic.Uint64
}

func NewAnonymityJudge(client *Client, judges []string) *AnonymityJudge {
	return &AnonymityJudge{Client: client, Judges: judges}
}

func (a *AnonymityJudge) Name() string                     { return "anonymity-judge" }
func (a *AnonymityJudge) AppliesTo(proxy *model.Proxy) bool { return true }

// Validate learns the tester's own public IP by calling the judge
// directly, without a proxy (spec 4.4: "learned at startup from the
// judge without a proxy").
func (a *AnonymityJudge) Validate(ctx context.Context) error {
	resp, test := a.Client.Do(ctx, nil, a.judgeURL(), nil)
	if test != nil {
		return &ValidateError{Probe: a.Name(), Info: test.Info}
	}
	fields := parseJudgeResponse(string(resp.Body))
	ip, ok := fields["REMOTE_ADDR"]
	if !ok {
		return &ValidateError{Probe: a.Name(), Info: "judge response missing REMOTE_ADDR"}
	}
	a.localIP = ip
	return nil
}

func (a *AnonymityJudge) Execute(ctx context.Context, proxy *model.Proxy) model.ProxyTest {
	ua := a.Client.UserAgents.Get()
	headers := http.Header{"User-Agent": []string{ua}}
	resp, test := a.Client.Do(ctx, proxy, a.judgeURL(), headers)
	if test != nil {
		return *test
	}
	latency := int(resp.Latency.Milliseconds())
	fields := parseJudgeResponse(string(resp.Body))
	if len(fields) == 0 {
		return model.ProxyTest{Status: model.ERROR, Info: "Error parsing response", Latency: latency}
	}
	for _, v := range fields {
		if a.localIP != "" && strings.Contains(v, a.localIP) {
			return model.ProxyTest{Status: model.ERROR, Info: "Non-anonymous proxy", Latency: latency}
		}
	}
	if fields["USER_AGENT"] != ua {
		return model.ProxyTest{Status: model.ERROR, Info: "Bad user-agent", Latency: latency}
	}
	return model.ProxyTest{Status: model.OK, Info: "Anonymous proxy", Latency: latency}
}

func (a *AnonymityJudge) judgeURL() string {
	if len(a.Judges) == 0 {
		return ""
	}
	i := a.next.Add(1) - 1
	return a.Judges[i%uint64(len(a.Judges))]
}

// parseJudgeResponse mirrors azenv.py's __parse_response: scan each line,
// and for the first keyword it contains, capture the "key = value" split.
func parseJudgeResponse(content string) map[string]string {
	result := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		upper := strings.ToUpper(line)
		for _, kw := range judgeKeywords {
			if strings.Contains(upper, kw) {
				if parts := strings.SplitN(line, " = ", 2); len(parts) == 2 {
					result[kw] = strings.TrimSpace(parts[1])
				}
				break
			}
		}
	}
	return result
}
