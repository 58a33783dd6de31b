package channel

import (
	"net"
	"net/http"
	"time"
)

// SharedHTTPClient returns the pooled client used for every Telegram and
// Revolt request. userAgent is set on requests that do not carry one.
// A timeout of zero or less leaves requests bounded only by their context.
func SharedHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Two API hosts plus Autumn and the Telegram file host.
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	var rt http.RoundTripper = base
	if userAgent != "" {
		rt = userAgentTransport{base: base, agent: userAgent}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}
