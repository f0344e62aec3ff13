// Package task declares the unit of work of a build.
package task

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/log"
	"github.com/vinceanalytics/pave/internal/transform"
)

// Runner is anything the graph and the watch router can execute.
type Runner interface {
	Name() string
	Run(ctx context.Context) (*Result, error)
}

type Result struct {
	Task     string
	Written  []string
	Duration time.Duration
}

// Task reads the files matching Sources, threads them through Transforms in
// order and writes whatever comes out beneath Dest.
//
// Sources are doublestar patterns relative to Root and are resolved on every
// run. A matched file keeps its path relative to the static prefix of the
// pattern that matched it, so src/images/**/* maps src/images/a/b.png to
// a/b.png under Dest.
type Task struct {
	ID         string
	Root       string
	Sources    []string
	Transforms []transform.Adapter
	Dest       string
}

var _ Runner = (*Task)(nil)

func (t *Task) Name() string { return t.ID }

// Validate checks the declaration without touching the filesystem.
func (t *Task) Validate() error {
	if t.ID == "" {
		return failure.Configf("task", "", "missing name")
	}
	if t.Root == "" || t.Dest == "" {
		return failure.Configf("task", t.ID, "missing root or destination")
	}
	if len(t.Sources) == 0 {
		return failure.Configf("task", t.ID, "missing source patterns")
	}
	for _, p := range t.Sources {
		if !doublestar.ValidatePattern(p) || path.IsAbs(p) {
			return failure.Configf("task", t.ID, "invalid source pattern "+p)
		}
	}
	for i, a := range t.Transforms {
		if a == nil {
			return failure.Configf("task", t.ID, "nil transform at position "+strconv.Itoa(i))
		}
	}
	return nil
}

func (t *Task) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	r := &Result{Task: t.ID}
	files, err := t.read()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.Get(ctx).Debug().Str("task", t.ID).Msg("no matching sources")
		r.Duration = time.Since(start)
		return r, nil
	}
	files, err = transform.Chain(ctx, files, t.Transforms...)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		out, err := t.write(f)
		if err != nil {
			return nil, err
		}
		r.Written = append(r.Written, out)
	}
	r.Duration = time.Since(start)
	return r, nil
}

// Match returns the files the task would read now, with their output paths.
func (t *Task) Match() ([]Match, error) {
	seen := make(map[string]struct{})
	var o []Match
	for _, pattern := range t.Sources {
		base, pat := doublestar.SplitPattern(pattern)
		dir := filepath.Join(t.Root, filepath.FromSlash(base))
		matches, err := doublestar.Glob(os.DirFS(dir), pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, failure.IO("glob", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			src := filepath.Join(dir, filepath.FromSlash(m))
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			o = append(o, Match{Source: src, Path: m})
		}
	}
	return o, nil
}

type Match struct {
	Source string
	Path   string
}

func (t *Task) read() ([]*transform.File, error) {
	ms, err := t.Match()
	if err != nil {
		return nil, err
	}
	files := make([]*transform.File, 0, len(ms))
	for _, m := range ms {
		data, err := os.ReadFile(m.Source)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// removed between glob and read, common while an editor saves
				continue
			}
			return nil, failure.IO("read", m.Source, err)
		}
		files = append(files, &transform.File{Path: m.Path, Source: m.Source, Data: data})
	}
	return files, nil
}

var errEscape = errors.New("output path escapes the destination")

func (t *Task) write(f *transform.File) (string, error) {
	rel := path.Clean(f.Path)
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", failure.IO("write", f.Path, errEscape)
	}
	out := filepath.Join(t.Dest, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", failure.IO("mkdir", filepath.Dir(out), err)
	}
	if err := os.WriteFile(out, f.Data, 0644); err != nil {
		return "", failure.IO("write", out, err)
	}
	return out, nil
}

// Clear removes Dir and everything below it. A missing directory is not an
// error.
type Clear struct {
	Dir string
}

var _ Runner = (*Clear)(nil)

func (c *Clear) Name() string { return "clear" }

func (c *Clear) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := os.RemoveAll(c.Dir); err != nil {
		return nil, failure.IO("remove", c.Dir, err)
	}
	return &Result{Task: c.Name(), Duration: time.Since(start)}, nil
}
