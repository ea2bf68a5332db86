// Package web embeds the browser side of the call demo.
package web

import "embed"

// Assets holds index.html and main.js.
//
//go:embed index.html main.js
var Assets embed.FS
