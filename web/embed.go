// Package web holds the client-side runtime served to rewritten pages.
package web

import "embed"

//go:embed cep.js sw.js comet-theme.css
var FS embed.FS
