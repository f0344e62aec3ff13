package transform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/xml"
)

const spriteStyle = `<style>:root>svg{display:none}:root>svg:target{display:block}</style>`

// Sprite stacks every SVG input into one document called name. Each icon
// becomes a nested svg whose id is the icon's base name, shown through the
// :target selector, so sprite.svg#icon renders a single icon.
func Sprite(name string) Adapter {
	return &sprite{name: name}
}

type sprite struct {
	name string
}

var _ Adapter = (*sprite)(nil)

func (s *sprite) Name() string { return "sprite:" + s.name }

func (s *sprite) Apply(_ context.Context, files []*File) ([]*File, error) {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`)
	b.WriteString(spriteStyle)
	n := 0
	for _, f := range files {
		if f.Ext() != ".svg" {
			continue
		}
		icon, err := parseIcon(f.Data)
		if err != nil {
			return nil, Fail(s.Name(), f, err)
		}
		id := strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path))
		b.WriteString(`<svg`)
		if icon.viewBox != "" {
			b.WriteString(` viewBox="` + icon.viewBox + `"`)
		}
		if icon.width != "" && icon.height != "" {
			b.WriteString(` width="` + icon.width + `" height="` + icon.height + `"`)
		}
		b.WriteString(` id="` + id + `">`)
		b.Write(icon.body)
		b.WriteString(`</svg>`)
		n++
	}
	if n == 0 {
		return nil, nil
	}
	b.WriteString(`</svg>`)
	return []*File{{Path: s.name, Data: b.Bytes()}}, nil
}

type icon struct {
	viewBox, width, height string
	body                   []byte
}

// parseIcon extracts the root attributes and the markup inside the root svg
// element.
func parseIcon(data []byte) (*icon, error) {
	// the lexer rewrites whitespace inside attribute values in place
	buf := make([]byte, len(data), len(data)+1)
	copy(buf, data)
	l := xml.NewLexer(parse.NewInputBytes(buf))
	var (
		ic    icon
		root  bool
		inTag bool
		depth int
	)
	for {
		tt, raw := l.Next()
		if tt == xml.ErrorToken {
			if l.Err() == io.EOF {
				return nil, errors.New("missing closing svg element")
			}
			return nil, l.Err()
		}
		if !root {
			switch tt {
			case xml.StartTagToken:
				if string(l.Text()) != "svg" {
					return nil, errors.New("root element is not svg")
				}
				inTag = true
			case xml.AttributeToken:
				if inTag {
					v := unquote(l.AttrVal())
					switch string(l.Text()) {
					case "viewBox":
						ic.viewBox = v
					case "width":
						ic.width = v
					case "height":
						ic.height = v
					}
				}
			case xml.StartTagCloseToken:
				if inTag {
					root = true
				}
			case xml.StartTagCloseVoidToken:
				if inTag {
					return &ic, nil
				}
			}
			continue
		}
		switch tt {
		case xml.StartTagToken:
			depth++
		case xml.StartTagCloseVoidToken:
			depth--
		case xml.EndTagToken:
			if depth == 0 {
				if ic.viewBox == "" && ic.width != "" && ic.height != "" {
					ic.viewBox = "0 0 " + strings.TrimSuffix(ic.width, "px") + " " + strings.TrimSuffix(ic.height, "px")
				}
				return &ic, nil
			}
			depth--
		}
		ic.body = append(ic.body, raw...)
	}
}

func unquote(b []byte) string {
	if len(b) >= 2 && (b[0] == '"' || b[0] == '\'') && b[len(b)-1] == b[0] {
		b = b[1 : len(b)-1]
	}
	return string(b)
}
