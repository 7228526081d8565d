// Package proxyurl encodes absolute target URLs into proxy-relative path
// segments and back.
package proxyurl

import (
	"net/url"
	"strings"
)

// Prefix is the path prefix under which proxied targets are served.
const Prefix = "/proxy/"

// skippedSchemes lists URL forms that must never be routed through the proxy:
// rewriting them would break inline content or execute unintended code.
var skippedSchemes = []string{
	"data:",
	"javascript:",
	"blob:",
	"mailto:",
	"tel:",
}

// Codec encodes resource URLs found on a proxied page. Relative references
// are resolved against Base, the page's own target URL, before encoding.
type Codec struct {
	Base *url.URL
}

// NewCodec creates a Codec for a page fetched from base.
func NewCodec(base *url.URL) *Codec {
	return &Codec{Base: base}
}

// Encode normalizes raw to absolute form against the base URL and
// percent-encodes the result so it can travel as a single path segment.
// Fails open: unparsable input is returned unchanged so the caller always
// gets a usable string.
func (c *Codec) Encode(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	abs := ref
	if c.Base != nil {
		abs = c.Base.ResolveReference(ref)
	}
	return url.QueryEscape(abs.String())
}

// ProxyPath returns the proxy-relative path for raw, or raw unchanged when
// it must not be rewritten.
func (c *Codec) ProxyPath(raw string) string {
	if !ShouldRewrite(raw) {
		return raw
	}
	return Prefix + c.Encode(raw)
}

// Decode reverses Encode. Fails open: a token with invalid percent-encoding
// is returned unchanged.
func Decode(token string) string {
	s, err := url.QueryUnescape(token)
	if err != nil {
		return token
	}
	return s
}

// ShouldRewrite reports whether a URL reference is eligible for proxying.
// Empty strings, bare fragments and non-http schemes such as data:,
// javascript: and blob: are left alone.
func ShouldRewrite(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}
