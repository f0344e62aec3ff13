// Package transform wraps external content collaborators behind one
// interface.
//
// An Adapter receives the files a task matched, in order, and returns the
// files that continue down the chain. Per-file collaborators are built with
// Each; adapters that fold many inputs into one output (Concat, Sprite) see
// the whole slice.
package transform

import (
	"context"
	"path"
	"strings"

	"github.com/vinceanalytics/pave/internal/failure"
)

// File is one unit of content flowing through a task.
type File struct {
	// Path is the slash separated output path relative to the task
	// destination.
	Path string
	// Source is the absolute path the content originated from. It is kept
	// through renames so failures can name the file a user edits.
	Source string
	Data   []byte
}

// Ext returns the lower cased extension of the file path.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// WithExt returns a copy of f with its extension replaced.
func (f *File) WithExt(ext string, data []byte) *File {
	return &File{
		Path:   strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext,
		Source: f.Source,
		Data:   data,
	}
}

type Adapter interface {
	// Name identifies the collaborator in logs and failures.
	Name() string
	Apply(ctx context.Context, files []*File) ([]*File, error)
}

// Func transforms a single file. Returning a nil file drops it.
type Func func(ctx context.Context, f *File) (*File, error)

// Each lifts fn into an Adapter applied to every file in order. Errors that
// are not already classified become transform failures naming the file.
func Each(name string, fn Func) Adapter {
	return &each{name: name, fn: fn}
}

type each struct {
	name  string
	fn    Func
	cache *Cache
}

var _ Adapter = (*each)(nil)

func (e *each) Name() string { return e.name }

func (e *each) Apply(ctx context.Context, files []*File) ([]*File, error) {
	o := make([]*File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := e.apply(ctx, f)
		if err != nil {
			return nil, Fail(e.name, f, err)
		}
		if r != nil {
			o = append(o, r)
		}
	}
	return o, nil
}

func (e *each) apply(ctx context.Context, f *File) (*File, error) {
	if e.cache == nil {
		return e.fn(ctx, f)
	}
	key := e.cache.key(e.name, f)
	if r, ok := e.cache.lru.Get(key); ok {
		return r, nil
	}
	r, err := e.fn(ctx, f)
	if err != nil {
		return nil, err
	}
	e.cache.lru.Add(key, r)
	return r, nil
}

// Fail classifies err as a transform failure of collaborator on f unless it
// already is a classified failure.
func Fail(collaborator string, f *File, err error) error {
	if _, ok := failure.As(err); ok {
		return err
	}
	src := ""
	if f != nil {
		src = f.Source
		if src == "" {
			src = f.Path
		}
	}
	return failure.Transform(collaborator, src, err)
}

// Chain applies adapters in order, threading outputs into the next one.
func Chain(ctx context.Context, files []*File, adapters ...Adapter) ([]*File, error) {
	var err error
	for _, a := range adapters {
		files, err = a.Apply(ctx, files)
		if err != nil {
			return nil, Fail(a.Name(), nil, err)
		}
		if len(files) == 0 {
			return nil, nil
		}
	}
	return files, nil
}
