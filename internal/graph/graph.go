// Package graph runs a full build as ordered groups of independent tasks.
//
// Groups execute strictly one after another. Tasks inside a group execute
// concurrently and the group is done when all of them are. The first failure
// stops later groups from starting, but never cancels siblings in the same
// group: their output is still written.
package graph

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/log"
	"github.com/vinceanalytics/pave/internal/metrics"
	"github.com/vinceanalytics/pave/internal/task"
)

// Group is a set of tasks with no declared dependency between them.
type Group []task.Runner

type Graph struct {
	groups []Group
}

// New validates groups and returns the graph. Every task name is unique across
// the graph, no group is empty and a clearing task may only appear alone in
// the first group.
func New(groups ...Group) (*Graph, error) {
	seen := make(map[string]struct{})
	for i, g := range groups {
		if len(g) == 0 {
			return nil, failure.Configf("graph", "group", "empty group")
		}
		for _, r := range g {
			if r == nil {
				return nil, failure.Configf("graph", "group", "nil task")
			}
			name := r.Name()
			if name == "" {
				return nil, failure.Configf("graph", "task", "missing name")
			}
			if _, ok := seen[name]; ok {
				return nil, failure.Configf("graph", name, "task appears more than once")
			}
			seen[name] = struct{}{}
			if _, ok := r.(*task.Clear); ok && (i != 0 || len(g) != 1) {
				return nil, failure.Configf("graph", name, "clearing task must be alone in the first group")
			}
			if v, ok := r.(interface{ Validate() error }); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
		}
	}
	return &Graph{groups: groups}, nil
}

func (g *Graph) Groups() []Group { return g.groups }

// Run executes the graph and returns the first failure.
func (g *Graph) Run(ctx context.Context) error {
	id := ulid.Make().String()
	ctx = log.With(ctx, "run_id", id)
	lg := log.Get(ctx)
	start := time.Now()
	lg.Info().Int("groups", len(g.groups)).Msg("starting build")
	for i, grp := range g.groups {
		if err := RunGroup(ctx, grp); err != nil {
			lg.Error().Int("group", i+1).Err(err).Msg("build failed")
			return err
		}
	}
	lg.Info().Dur("elapsed", time.Since(start)).Msg("build complete")
	return nil
}

// RunGroup runs every task of grp concurrently and waits for all of them.
func RunGroup(ctx context.Context, grp Group) error {
	var eg errgroup.Group
	for _, r := range grp {
		r := r
		eg.Go(func() error {
			_, err := Exec(ctx, r)
			return err
		})
	}
	return eg.Wait()
}

// Exec runs a single task with logging and metrics. Failures are logged here,
// before they propagate, with the collaborator and source that caused them.
func Exec(ctx context.Context, r task.Runner) (*task.Result, error) {
	name := r.Name()
	ctx = log.With(ctx, "task", name)
	lg := log.Get(ctx)
	lg.Debug().Msg("starting task")
	start := time.Now()
	res, err := r.Run(ctx)
	metrics.TaskDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "unknown"
		ev := lg.Error().Err(err)
		if f, ok := failure.As(err); ok {
			kind = f.KindName()
			ev = ev.Str("kind", kind).Str("collaborator", f.Subject).Str("source", f.Source)
		}
		ev.Msg("task failed")
		metrics.TaskFailures.WithLabelValues(name, kind).Inc()
		return nil, err
	}
	metrics.FilesWritten.WithLabelValues(name).Add(float64(len(res.Written)))
	lg.Info().Int("files", len(res.Written)).Dur("elapsed", res.Duration).Msg("task done")
	return res, nil
}
