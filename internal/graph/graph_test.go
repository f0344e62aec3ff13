package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/task"
	"github.com/vinceanalytics/pave/internal/transform"
)

type fake struct {
	name string
	run  func(ctx context.Context) error
}

func (f *fake) Name() string { return f.name }

func (f *fake) Run(ctx context.Context) (*task.Result, error) {
	if f.run != nil {
		if err := f.run(ctx); err != nil {
			return nil, err
		}
	}
	return &task.Result{Task: f.name}, nil
}

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

func TestNewValidates(t *testing.T) {
	a := &fake{name: "a"}
	b := &fake{name: "b"}
	clr := &task.Clear{Dir: "dist"}
	cases := map[string][]Group{
		"empty group":     {{a}, {}},
		"duplicate":       {{a}, {b, a}},
		"missing name":    {{&fake{}}},
		"clear not first": {{a}, {clr}},
		"clear not alone": {{clr, a}},
		"invalid task":    {{&task.Task{ID: "html"}}},
	}
	for name, groups := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(groups...)
			require.True(t, failure.Is(err, failure.ErrConfig), "got %v", err)
		})
	}
	g, err := New(Group{clr}, Group{a, b})
	require.NoError(t, err)
	require.Len(t, g.Groups(), 2)
}

func TestGroupsRunInOrder(t *testing.T) {
	var j journal
	step := func(name string) *fake {
		return &fake{name: name, run: func(context.Context) error {
			j.add("start " + name)
			time.Sleep(5 * time.Millisecond)
			j.add("end " + name)
			return nil
		}}
	}
	g, err := New(Group{step("a1"), step("a2")}, Group{step("b1")})
	require.NoError(t, err)
	require.NoError(t, g.Run(context.Background()))

	events := j.list()
	require.Len(t, events, 6)
	require.Equal(t, "start b1", events[4])
	require.Equal(t, "end b1", events[5])
}

func TestGroupRunsConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	meet := func(name string) *fake {
		return &fake{name: name, run: func(context.Context) error {
			wg.Done()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("sibling never started")
			}
		}}
	}
	g, err := New(Group{meet("x"), meet("y")})
	require.NoError(t, err)
	require.NoError(t, g.Run(context.Background()))
}

func TestFailureIsolation(t *testing.T) {
	root := t.TempDir()
	var j journal
	boom := failure.Transform("sass", "src/sass/a.scss", errors.New("bad syntax"))
	failing := &fake{name: "styles", run: func(context.Context) error { return boom }}
	sibling := &fake{name: "fonts", run: func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		j.add("fonts written")
		return os.WriteFile(filepath.Join(root, "font.woff"), []byte("f"), 0600)
	}}
	next := &fake{name: "sprite", run: func(context.Context) error {
		j.add("sprite started")
		return nil
	}}
	g, err := New(Group{failing, sibling}, Group{next})
	require.NoError(t, err)

	err = g.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.True(t, failure.Is(err, failure.ErrTransform))
	require.Equal(t, []string{"fonts written"}, j.list())
	_, err = os.Stat(filepath.Join(root, "font.woff"))
	require.NoError(t, err)
}

func TestClearingGroupRemovesStaleOutput(t *testing.T) {
	root := t.TempDir()
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "old"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "old", "stale.html"), []byte("x"), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "index.html"), []byte("<p>hi</p>"), 0600))

	html := &task.Task{
		ID:         "html",
		Root:       root,
		Sources:    []string{"src/*.html"},
		Transforms: []transform.Adapter{transform.MinifyHTML()},
		Dest:       dist,
	}
	g, err := New(Group{&task.Clear{Dir: dist}}, Group{html})
	require.NoError(t, err)
	require.NoError(t, g.Run(context.Background()))

	var files []string
	require.NoError(t, filepath.Walk(dist, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			rel, _ := filepath.Rel(dist, path)
			files = append(files, rel)
		}
		return err
	}))
	require.Equal(t, []string{"index.html"}, files)
}
