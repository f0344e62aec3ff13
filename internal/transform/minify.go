package transform

import (
	"context"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mediaCSS  = "text/css"
	mediaHTML = "text/html"
	mediaJS   = "application/javascript"
	mediaSVG  = "image/svg+xml"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(mediaCSS, css.Minify)
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc(mediaJS, js.Minify)
	m.AddFunc(mediaSVG, svg.Minify)
	return m
}

func minifyWith(media string) Func {
	return func(_ context.Context, f *File) (*File, error) {
		o, err := minifier.Bytes(media, f.Data)
		if err != nil {
			return nil, err
		}
		return &File{Path: f.Path, Source: f.Source, Data: o}, nil
	}
}

// MinifyCSS collapses a stylesheet.
func MinifyCSS() Adapter { return Each("minify-css", minifyWith(mediaCSS)) }

// MinifyHTML collapses whitespace and drops comments. Inline styles and
// scripts are minified too.
func MinifyHTML() Adapter { return Each("minify-html", minifyWith(mediaHTML)) }
