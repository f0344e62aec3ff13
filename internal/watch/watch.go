// Package watch reruns tasks when source files change.
//
// Each binding owns a single pending slot. An event that arrives while the
// binding is idle starts a run at once; events that arrive while it is running
// overwrite the slot, so however many changes pile up only one fresh run
// follows the current one. Bindings never wait on each other.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"

	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/graph"
	"github.com/vinceanalytics/pave/internal/log"
	"github.com/vinceanalytics/pave/internal/task"
)

type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Notifier receives a signal after a binding run succeeded. Implementations
// must not block.
type Notifier interface {
	Reload(paths ...string)
}

// Binding maps project relative path patterns to the tasks a change must
// rerun, in order.
type Binding struct {
	Name     string
	Patterns []string
	Tasks    []task.Runner
	Reload   bool
}

type Router struct {
	root     string
	notify   Notifier
	bindings []*binding
	wg       sync.WaitGroup
	started  atomic.Bool
}

type binding struct {
	Binding
	state   atomic.Int32
	runs    atomic.Int64
	pending chan string
}

// New validates bindings. notify may be nil when nothing listens for reloads.
func New(root string, notify Notifier, bindings ...Binding) (*Router, error) {
	r := &Router{root: root, notify: notify}
	seen := make(map[string]struct{})
	for _, b := range bindings {
		if b.Name == "" {
			return nil, failure.Configf("binding", "", "missing name")
		}
		if _, ok := seen[b.Name]; ok {
			return nil, failure.Configf("binding", b.Name, "declared more than once")
		}
		seen[b.Name] = struct{}{}
		if len(b.Patterns) == 0 || len(b.Tasks) == 0 {
			return nil, failure.Configf("binding", b.Name, "needs at least one pattern and one task")
		}
		for _, p := range b.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, failure.Configf("binding", b.Name, "invalid pattern "+p)
			}
		}
		for _, t := range b.Tasks {
			if t == nil {
				return nil, failure.Configf("binding", b.Name, "nil task")
			}
		}
		r.bindings = append(r.bindings, &binding{
			Binding: b,
			pending: make(chan string, 1),
		})
	}
	return r, nil
}

// Start launches one loop per binding. The loops stop when ctx is done; Wait
// blocks until they have.
func (r *Router) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	for _, b := range r.bindings {
		b := b
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			b.loop(ctx, r.notify)
		}()
	}
}

func (r *Router) Wait() { r.wg.Wait() }

// Dispatch routes a changed path to every binding whose patterns match it and
// returns the names of those bindings. Absolute paths are made relative to the
// router root first.
func (r *Router) Dispatch(path string) []string {
	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(r.root, path)
		if err != nil {
			return nil
		}
	}
	rel = filepath.ToSlash(rel)
	var o []string
	for _, b := range r.bindings {
		if b.match(rel) {
			b.trigger(rel)
			o = append(o, b.Name)
		}
	}
	return o
}

// State returns the state of the named binding.
func (r *Router) State(name string) State {
	for _, b := range r.bindings {
		if b.Name == name {
			return State(b.state.Load())
		}
	}
	return Idle
}

// Runs returns how many runs of the named binding have finished.
func (r *Router) Runs(name string) int64 {
	for _, b := range r.bindings {
		if b.Name == name {
			return b.runs.Load()
		}
	}
	return 0
}

// Watch feeds filesystem events below dirs into Dispatch until ctx is done.
// Directories are watched recursively, including ones created later.
func (r *Router) Watch(ctx context.Context, dirs ...string) error {
	r.Start(ctx)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	lg := log.Get(ctx)
	for _, d := range dirs {
		if err := addTree(w, d); err != nil {
			if os.IsNotExist(err) {
				lg.Warn().Str("dir", d).Msg("skipping missing directory")
				continue
			}
			return failure.IO("watch", d, err)
		}
	}
	lg.Info().Strs("dirs", dirs).Msg("watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						lg.Warn().Err(err).Str("dir", ev.Name).Msg("failed watching new directory")
					}
				}
			}
			if names := r.Dispatch(ev.Name); len(names) > 0 {
				lg.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Strs("bindings", names).Msg("change")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			lg.Warn().Err(err).Msg("watcher error")
		}
	}
}

func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (b *binding) match(rel string) bool {
	for _, p := range b.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// trigger stores path in the pending slot, replacing whatever was waiting.
func (b *binding) trigger(path string) {
	for {
		select {
		case b.pending <- path:
			return
		default:
		}
		select {
		case <-b.pending:
		default:
		}
	}
}

func (b *binding) loop(ctx context.Context, notify Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-b.pending:
			b.run(ctx, notify, path)
		}
	}
}

func (b *binding) run(ctx context.Context, notify Notifier, path string) {
	b.state.Store(int32(Running))
	defer func() {
		b.runs.Add(1)
		b.state.Store(int32(Idle))
	}()
	ctx = log.With(ctx, "run_id", ulid.Make().String())
	ctx = log.With(ctx, "binding", b.Name)
	lg := log.Get(ctx)
	lg.Info().Str("path", path).Msg("rebuilding")
	for _, t := range b.Tasks {
		if _, err := graph.Exec(ctx, t); err != nil {
			lg.Error().Err(err).Msg("rebuild failed, waiting for the next change")
			return
		}
	}
	if b.Reload && notify != nil {
		notify.Reload(path)
	}
}
