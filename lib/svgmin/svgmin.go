// Package svgmin shrinks rendered svg markup.
package svgmin

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	svgMime = "image/svg+xml"
	cssMime = "text/css"
)

var m = func() *minify.M {
	m := minify.New()
	m.AddFunc(cssMime, css.Minify)
	// Inline stays false so the svg namespace survives.
	m.Add(svgMime, &svg.Minifier{
		Precision: 0,
	})
	return m
}()

// Minify returns an equivalent smaller document. Embedded stylesheets are minified too.
func Minify(s string) (string, error) {
	return m.String(svgMime, s)
}
