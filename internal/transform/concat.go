package transform

import (
	"bytes"
	"context"
)

// Concat joins every input into a single file called name, separated by a
// newline, in input order.
func Concat(name string) Adapter {
	return &concat{name: name}
}

type concat struct {
	name string
}

var _ Adapter = (*concat)(nil)

func (c *concat) Name() string { return "concat:" + c.name }

func (c *concat) Apply(_ context.Context, files []*File) ([]*File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	var b bytes.Buffer
	for i, f := range files {
		if i != 0 {
			b.WriteByte('\n')
		}
		b.Write(f.Data)
	}
	return []*File{{Path: c.name, Source: files[0].Source, Data: b.Bytes()}}, nil
}
