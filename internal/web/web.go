// Package web holds the HTML templates and static assets of the card site.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templates embed.FS

//go:embed static
var static embed.FS

//go:embed content/intro.md
var introMarkdown []byte

// TemplatesFS exposes the embedded templates rooted at the templates directory.
func TemplatesFS() (fs.FS, error) {
	return fs.Sub(templates, "templates")
}

// StaticFS exposes the embedded assets rooted at the static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(static, "static")
}
