package transform

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
)

// Optimize re-encodes raster images and minifies SVG. The smaller of the
// original and the re-encoded bytes is kept, so optimizing an already tight
// image never grows it. Other files pass through untouched.
func Optimize(jpegQuality int) Func {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	svg := minifyWith(mediaSVG)
	return func(ctx context.Context, f *File) (*File, error) {
		var (
			b   bytes.Buffer
			err error
		)
		switch f.Ext() {
		case ".jpg", ".jpeg":
			var m image.Image
			if m, err = jpeg.Decode(bytes.NewReader(f.Data)); err == nil {
				err = jpeg.Encode(&b, m, &jpeg.Options{Quality: jpegQuality})
			}
		case ".png":
			var m image.Image
			if m, err = png.Decode(bytes.NewReader(f.Data)); err == nil {
				err = enc.Encode(&b, m)
			}
		case ".gif":
			var g *gif.GIF
			if g, err = gif.DecodeAll(bytes.NewReader(f.Data)); err == nil {
				err = gif.EncodeAll(&b, g)
			}
		case ".svg":
			return svg(ctx, f)
		default:
			return f, nil
		}
		if err != nil {
			return nil, err
		}
		if b.Len() >= len(f.Data) {
			return f, nil
		}
		return &File{Path: f.Path, Source: f.Source, Data: b.Bytes()}, nil
	}
}
