// Package service implements the proxy request orchestration: target
// resolution, blocklist checks and the upstream fetch.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/Apex-dev01/Comet/internal/client"
	"github.com/Apex-dev01/Comet/internal/config"
	"github.com/Apex-dev01/Comet/internal/features"
	"github.com/Apex-dev01/Comet/internal/model"
	"github.com/Apex-dev01/Comet/internal/proxyurl"
)

// ErrMissingTarget is returned when the proxy path carries no target URL.
var ErrMissingTarget = errors.New("missing target URL: expected /proxy/<percent-encoded-absolute-url>")

// ErrInvalidTarget is returned when the decoded target is not an absolute
// http or https URL.
var ErrInvalidTarget = errors.New("target URL must be an absolute http or https URL")

// ErrBlockedHost is returned when the target host is on the blocklist.
var ErrBlockedHost = errors.New("target host is not allowed")

// hopByHopHeaders are connection-scoped headers that must not travel past a
// proxy in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// forwardableRequestHeaders are the request headers forwarded to the target
// besides User-Agent.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
}

// htmlMediaTypes are the content types routed through the rewrite engine.
var htmlMediaTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

// ProxyService resolves and fetches proxied targets.
type ProxyService struct {
	client *client.UpstreamClient
	cfg    *config.Config
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
	}
}

// ResolveTarget turns the escaped request path into an absolute target URL.
// The path segment after the proxy prefix decodes to either a valid target
// or an error; partially-decoded strings never escape this function.
func (s *ProxyService) ResolveTarget(escapedPath string) (*url.URL, error) {
	token := strings.TrimPrefix(escapedPath, proxyurl.Prefix)
	token = strings.TrimPrefix(token, strings.TrimSuffix(proxyurl.Prefix, "/"))
	if token == "" {
		return nil, ErrMissingTarget
	}

	target := proxyurl.Decode(token)
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return u, nil
}

// Fetch retrieves the target resource. The caller's User-Agent is forwarded
// (or the configured default when absent) and the inbound request context
// governs the upstream request lifetime. The caller must close the body.
func (s *ProxyService) Fetch(pr *model.ProxyRequest, snap features.Snapshot) (*model.ProxyResponse, error) {
	if snap.HostBlocked(pr.Target.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedHost, pr.Target.Hostname())
	}

	s.logger.Debug("fetching target", "host", pr.Target.Host)

	resp, err := s.client.Get(pr.Ctx, pr.Target.String(), s.buildRequestHeaders(pr.Header))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pr.Target.Host, err)
	}

	resp.Header = stripHopByHop(resp.Header)
	return resp, nil
}

func (s *ProxyService) buildRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}

	ua := src.Get("User-Agent")
	if ua == "" {
		ua = s.cfg.Upstream.UserAgent
	}
	dst.Set("User-Agent", ua)
	return dst
}

func stripHopByHop(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[key] = vals
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	return dst
}

// IsHTML reports whether a Content-Type header value names an HTML media
// type. Anything else bypasses the rewrite engine entirely.
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return htmlMediaTypes[mediaType]
}
