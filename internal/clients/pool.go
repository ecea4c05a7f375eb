package clients

import (
	"net"
	"net/http"
	"time"
)

// PoolConfig sizes a vendor-specific HTTP connection pool.
type PoolConfig struct {
	MaxIdle        int
	MaxIdlePerHost int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Transcriber uploads are large and long-running; request deadlines come from
// per-file context timeouts, so RequestTimeout stays zero here.
func TranscriberPool() PoolConfig {
	return PoolConfig{
		MaxIdle:        100,
		MaxIdlePerHost: 20,
		ConnectTimeout: 10 * time.Second,
	}
}

// ContentGenPool sizes the pool for long-held generation requests. The
// request deadline is the configured per-call timeout, so RequestTimeout
// stays zero here too.
func ContentGenPool() PoolConfig {
	return PoolConfig{
		MaxIdle:        50,
		MaxIdlePerHost: 10,
		ConnectTimeout: 15 * time.Second,
	}
}

// DocStorePool sizes the pool for frequent short document calls.
func DocStorePool() PoolConfig {
	return PoolConfig{
		MaxIdle:        150,
		MaxIdlePerHost: 30,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// New builds an HTTP client backed by a pooled transport.
func New(cfg PoolConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdle,
		MaxIdleConnsPerHost:   cfg.MaxIdlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}

// Pools bundles the vendor clients so constructors share one wired set.
type Pools struct {
	Transcriber *http.Client
	ContentGen  *http.Client
	DocStore    *http.Client
}

// NewPools builds the full set of vendor clients with default sizing.
func NewPools() *Pools {
	return &Pools{
		Transcriber: New(TranscriberPool()),
		ContentGen:  New(ContentGenPool()),
		DocStore:    New(DocStorePool()),
	}
}

// CloseIdle releases idle connections across all pools.
func (p *Pools) CloseIdle() {
	if p == nil {
		return
	}
	for _, client := range []*http.Client{p.Transcriber, p.ContentGen, p.DocStore} {
		if client == nil {
			continue
		}
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}
