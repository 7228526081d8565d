package rewrite

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Apex-dev01/Comet/internal/proxyurl"
)

// rewritableTags are the elements whose URL-bearing attributes are routed
// back through the proxy. Applying the rewrite to arbitrary tags risks
// corrupting non-URL attributes that happen to share a name.
var rewritableTags = map[string]bool{
	"a":      true,
	"area":   true,
	"audio":  true,
	"embed":  true,
	"form":   true,
	"frame":  true,
	"iframe": true,
	"img":    true,
	"input":  true,
	"link":   true,
	"object": true,
	"script": true,
	"source": true,
	"track":  true,
	"video":  true,
}

// rewritableAttrs are the attribute names whose values carry URLs.
var rewritableAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"data":       true,
	"formaction": true,
	"poster":     true,
}

// AttributeRewriter rewrites URL-bearing attributes on matched elements via
// the URL codec, leaving everything else untouched.
type AttributeRewriter struct {
	codec *proxyurl.Codec
}

// NewAttributeRewriter creates an AttributeRewriter backed by codec.
func NewAttributeRewriter(codec *proxyurl.Codec) *AttributeRewriter {
	return &AttributeRewriter{codec: codec}
}

// Rewritable reports whether elements named tag are subject to rewriting.
func (r *AttributeRewriter) Rewritable(tag string) bool {
	return rewritableTags[tag]
}

// Rewrite replaces URL-bearing attribute values on tok in place. Attribute
// order is preserved and attributes outside the configured set are never
// modified. Returns the number of attributes rewritten.
func (r *AttributeRewriter) Rewrite(tok *html.Token) int {
	n := 0
	for i, attr := range tok.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case key == "srcset":
			if v := r.rewriteSrcset(attr.Val); v != attr.Val {
				tok.Attr[i].Val = v
				n++
			}
		case rewritableAttrs[key]:
			if v := r.codec.ProxyPath(attr.Val); v != attr.Val {
				tok.Attr[i].Val = v
				n++
			}
		}
	}
	return n
}

// rewriteSrcset rewrites each image candidate URL in a srcset value while
// keeping its width/density descriptor.
func (r *AttributeRewriter) rewriteSrcset(val string) string {
	candidates := strings.Split(val, ",")
	changed := false
	for i, candidate := range candidates {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		if proxied := r.codec.ProxyPath(fields[0]); proxied != fields[0] {
			fields[0] = proxied
			candidates[i] = strings.Join(fields, " ")
			changed = true
		}
	}
	if !changed {
		return val
	}
	return strings.Join(candidates, ", ")
}
