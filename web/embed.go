package web

import "embed"

// Content holds the embedded status page, which follows the pseudo-axis
// stream in the browser.
//
//go:embed index.html
var Content embed.FS
