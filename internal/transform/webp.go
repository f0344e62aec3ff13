package transform

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/webp"
)

// WebP encodes jpeg and png images as lossy WebP at quality, renaming them to
// .webp. Other files are dropped.
func WebP(quality int) Func {
	return func(_ context.Context, f *File) (*File, error) {
		switch f.Ext() {
		case ".jpg", ".jpeg", ".png":
		default:
			return nil, nil
		}
		m, _, err := image.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, err
		}
		var b bytes.Buffer
		err = webp.Encode(&b, m, webp.Options{Quality: quality})
		if err != nil {
			return nil, err
		}
		return f.WithExt(".webp", b.Bytes()), nil
	}
}
