// Package client builds HTTP clients for calling the identity platform.
package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient creates an HTTP client with disk-based response
// caching. Cacheable identity platform endpoints (the JWKS document
// carries Cache-Control headers) are served from cache across restarts.
func NewCachingHTTPClient(cacheDir string, timeout time.Duration) *http.Client {
	if cacheDir == "" {
		return NewInMemoryCachingHTTPClient(timeout)
	}

	cache := diskcache.New(cacheDir)
	return &http.Client{
		Transport: httpcache.NewTransport(cache),
		Timeout:   timeout,
	}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory
// response caching only. Suitable for testing or when disk caching is
// not desired.
func NewInMemoryCachingHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
		Timeout:   timeout,
	}
}
