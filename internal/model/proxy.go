// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents a decoded client request for a proxied target.
// Ctx is the inbound request context: a client disconnect cancels it, which
// aborts the upstream fetch and the streaming rewrite.
type ProxyRequest struct {
	Ctx    context.Context
	Target *url.URL
	Header http.Header
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
