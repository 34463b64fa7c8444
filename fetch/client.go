package fetch

import (
	"net"
	"net/http"
	"time"
)

// defaultTransport is shared by every Fetcher that does not bring its own
// client, so connections are pooled across fetches.
var defaultTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:   true,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 100,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// DefaultClient is used when Config.Client is nil. It carries no overall
// timeout of its own; the Fetcher's timeout governs the whole retrieval.
var DefaultClient = &http.Client{Transport: defaultTransport}
