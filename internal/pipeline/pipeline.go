// Package pipeline declares the site build: the tasks, the order they run in
// for a full build and which of them a source change reruns.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/vinceanalytics/pave/internal/config"
	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/graph"
	"github.com/vinceanalytics/pave/internal/task"
	"github.com/vinceanalytics/pave/internal/transform"
	"github.com/vinceanalytics/pave/internal/watch"
)

// Task names.
const (
	Clear         = "clear"
	Images        = "images"
	WebP          = "webp"
	Sprite        = "sprite"
	ScriptsVendor = "scripts:vendor"
	ScriptsMain   = "scripts:main"
	Styles        = "styles"
	Fonts         = "fonts"
	HTML          = "html"
)

const (
	spriteDir  = "images/svg-for-sprite"
	spriteName = "sprite.svg"
)

type Pipeline struct {
	Options  *config.Options
	Graph    *graph.Graph
	Bindings []watch.Binding
	tasks    map[string]task.Runner
	cache    *transform.Cache
}

type Option func(*settings)

type settings struct {
	stylesheet transform.Adapter
}

// WithStylesheet replaces the sass compiler used by the styles task.
func WithStylesheet(a transform.Adapter) Option {
	return func(s *settings) {
		s.stylesheet = a
	}
}

// New declares every task from o and checks the resulting graph and bindings.
// Source patterns are relative to the source directory, so are binding
// patterns.
func New(o *config.Options, opts ...Option) (*Pipeline, error) {
	s := settings{}
	for _, fn := range opts {
		fn(&s)
	}
	if s.stylesheet == nil {
		s.stylesheet = transform.Sass(o.Sass.Binary)
	}
	cache, err := transform.NewCache(o.Images.CacheSize)
	if err != nil {
		return nil, failure.Config("option", "images.cache_size", err)
	}
	src, dist := o.SourceDir(), o.OutputDir()
	p := &Pipeline{
		Options: o,
		tasks:   make(map[string]task.Runner),
		cache:   cache,
	}
	add := func(r task.Runner) task.Runner {
		p.tasks[r.Name()] = r
		return r
	}
	clr := add(&task.Clear{Dir: dist})
	images := add(&task.Task{
		ID:      Images,
		Root:    src,
		Sources: []string{"images/**/*"},
		Transforms: []transform.Adapter{
			transform.Memo(cache, "imagemin", transform.Optimize(o.Images.JPEGQuality)),
		},
		Dest: filepath.Join(dist, "images"),
	})
	webp := add(&task.Task{
		ID:      WebP,
		Root:    src,
		Sources: []string{"images/**/*.jpg", "images/**/*.png"},
		Transforms: []transform.Adapter{
			transform.Memo(cache, "webp", transform.WebP(o.Images.WebPQuality)),
		},
		Dest: filepath.Join(dist, "images"),
	})
	sprite := add(&task.Task{
		ID:         Sprite,
		Root:       dist,
		Sources:    []string{spriteDir + "/*.svg"},
		Transforms: []transform.Adapter{transform.Sprite(spriteName)},
		Dest:       filepath.Join(dist, "images"),
	})
	vendor := add(&task.Task{
		ID:      ScriptsVendor,
		Root:    src,
		Sources: []string{"js/vendor/*.js"},
		Transforms: []transform.Adapter{
			transform.Transpile(o.Scripts.Target),
			transform.Concat("vendor.js"),
		},
		Dest: filepath.Join(dist, "js"),
	})
	scripts := add(&task.Task{
		ID:      ScriptsMain,
		Root:    src,
		Sources: []string{"js/*.js", "js/components/*.js"},
		Transforms: []transform.Adapter{
			transform.Transpile(o.Scripts.Target),
			transform.Concat("main.js"),
		},
		Dest: filepath.Join(dist, "js"),
	})
	styles := add(&task.Task{
		ID:      Styles,
		Root:    src,
		Sources: []string{"sass/*.scss"},
		Transforms: []transform.Adapter{
			s.stylesheet,
			transform.MinifyCSS(),
			transform.Concat("styles.min.css"),
		},
		Dest: filepath.Join(dist, "css"),
	})
	fonts := add(&task.Task{
		ID:      Fonts,
		Root:    src,
		Sources: []string{"fonts/*.woff", "fonts/*.woff2"},
		Dest:    filepath.Join(dist, "fonts"),
	})
	html := add(&task.Task{
		ID:      HTML,
		Root:    src,
		Sources: []string{"*.html"},
		Transforms: []transform.Adapter{
			transform.Include(),
			transform.MinifyHTML(),
		},
		Dest: dist,
	})

	p.Graph, err = graph.New(
		graph.Group{clr},
		graph.Group{images, webp, vendor, scripts, styles, fonts, html},
		graph.Group{sprite},
	)
	if err != nil {
		return nil, err
	}
	p.Bindings = []watch.Binding{
		{Name: "html", Patterns: []string{"**/*.html"}, Tasks: []task.Runner{html}, Reload: true},
		{Name: "styles", Patterns: []string{"sass/**/*.scss"}, Tasks: []task.Runner{styles}, Reload: true},
		{Name: "scripts", Patterns: []string{"js/**/*.js"}, Tasks: []task.Runner{vendor, scripts}, Reload: true},
		{Name: "images", Patterns: []string{"images/**/*"}, Tasks: []task.Runner{images, webp, sprite}, Reload: true},
		{Name: "fonts", Patterns: []string{"fonts/*.{woff,woff2}"}, Tasks: []task.Runner{fonts}, Reload: true},
	}
	return p, nil
}

// Task returns the named task, or nil.
func (p *Pipeline) Task(name string) task.Runner { return p.tasks[name] }

// Build runs the full graph once.
func (p *Pipeline) Build(ctx context.Context) error { return p.Graph.Run(ctx) }

// Router returns a watch router for the source directory. notify may be nil.
func (p *Pipeline) Router(notify watch.Notifier) (*watch.Router, error) {
	return watch.New(p.Options.SourceDir(), notify, p.Bindings...)
}

// CacheLen returns how many optimized images are cached.
func (p *Pipeline) CacheLen() int { return p.cache.Len() }
