// Package web provides the embedded dashboard filesystem.
package web

import (
	"embed"
	"io/fs"
)

// StaticFS embeds the dashboard assets served at the HTTP root.
//
//go:embed all:static
var StaticFS embed.FS

// GetStaticFS returns the static subdirectory as a filesystem for
// serving.
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}
