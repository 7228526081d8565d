package rewrite

import (
	"strings"

	"github.com/Apex-dev01/Comet/internal/features"
)

// Paths and URLs of the client assets referenced by injected markup. The
// bootstrap and theme stylesheet are served by this proxy; the debug tool
// loads from its public CDN.
const (
	BootstrapScriptPath = "/cep.js"
	ThemeStylesheetPath = "/comet-theme.css"
	DebugToolScriptURL  = "https://cdn.jsdelivr.net/npm/eruda"
)

const debugButtonMarkup = `<button id="comet-debug-btn" title="Open debugger" ` +
	`style="position:fixed;bottom:16px;right:16px;z-index:2147483647;width:40px;height:40px;border-radius:50%;border:none;cursor:pointer;" ` +
	`onclick="window.comet.activateDebugger()">&#9881;</button>`

// Policy decides which markup fragments are spliced into the head and body
// of a rewritten document, based on a feature snapshot taken at the start of
// the request.
type Policy struct {
	snap features.Snapshot
}

// NewPolicy creates a Policy for one request.
func NewPolicy(snap features.Snapshot) *Policy {
	return &Policy{snap: snap}
}

// HeadMarkup returns the markup appended as the last child of <head>. The
// bootstrap reference is unconditional; the debug tool script follows the
// default-on flag and the theme stylesheet its default-off flag.
func (p *Policy) HeadMarkup() string {
	var b strings.Builder
	b.WriteString(`<script src="` + BootstrapScriptPath + `"></script>`)
	if p.snap.DebugToolEnabled() {
		b.WriteString(`<script src="` + DebugToolScriptURL + `"></script>`)
	}
	if p.snap.ThemeCustomizationEnabled() {
		b.WriteString(`<link rel="stylesheet" href="` + ThemeStylesheetPath + `">`)
	}
	return b.String()
}

// BodyMarkup returns the markup appended as the last child of <body>: a
// fixed-position control that invokes the client-side activation hook, or
// nothing when the debug tool is disabled.
func (p *Policy) BodyMarkup() string {
	if !p.snap.DebugToolEnabled() {
		return ""
	}
	return debugButtonMarkup
}
