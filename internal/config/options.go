package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"

	"github.com/vinceanalytics/pave/internal/failure"
)

const FILE = "pave.yaml"

type Options struct {
	Root     string  `yaml:"root"`
	Source   string  `yaml:"src"`
	Output   string  `yaml:"dist"`
	Listen   string  `yaml:"listen"`
	LogLevel string  `yaml:"log_level"`
	LogFile  string  `yaml:"log_file"`
	Sass     Sass    `yaml:"sass"`
	Images   Images  `yaml:"images"`
	Scripts  Scripts `yaml:"scripts"`
}

type Sass struct {
	Binary string `yaml:"binary"`
}

type Images struct {
	JPEGQuality int `yaml:"jpeg_quality"`
	WebPQuality int `yaml:"webp_quality"`
	// CacheSize is the number of optimized images kept in memory between
	// watch runs.
	CacheSize int `yaml:"cache_size"`
}

type Scripts struct {
	Target string `yaml:"target"`
}

func Defaults() *Options {
	return &Options{
		Root:     ".",
		Source:   "src",
		Output:   "dist",
		Listen:   ":3000",
		LogLevel: "info",
		Sass: Sass{
			Binary: "sass",
		},
		Images: Images{
			JPEGQuality: 75,
			WebPQuality: 75,
			CacheSize:   512,
		},
		Scripts: Scripts{
			Target: "es2015",
		},
	}
}

// SourceDir returns the absolute source directory.
func (o *Options) SourceDir() string { return resolve(o.Root, o.Source) }

// OutputDir returns the absolute output directory.
func (o *Options) OutputDir() string { return resolve(o.Root, o.Output) }

func Flags() []cli.Flag {
	d := Defaults()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "root",
			Usage:   "project root directory",
			Value:   d.Root,
			Sources: cli.EnvVars("PAVE_ROOT"),
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to configuration file (defaults to " + FILE + " in root)",
			Sources: cli.EnvVars("PAVE_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "src",
			Usage:   "source directory, relative to root",
			Value:   d.Source,
			Sources: cli.EnvVars("PAVE_SRC"),
		},
		&cli.StringFlag{
			Name:    "dist",
			Usage:   "output directory, relative to root",
			Value:   d.Output,
			Sources: cli.EnvVars("PAVE_DIST"),
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "dev server address",
			Value:   d.Listen,
			Sources: cli.EnvVars("PAVE_LISTEN"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level, values are (trace,debug,info,warn,error)",
			Value:   d.LogLevel,
			Sources: cli.EnvVars("PAVE_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "also write JSON logs to this file",
			Sources: cli.EnvVars("PAVE_LOG_FILE"),
		},
		&cli.StringFlag{
			Name:    "sass",
			Usage:   "path to the dart-sass executable",
			Value:   d.Sass.Binary,
			Sources: cli.EnvVars("PAVE_SASS"),
		},
		&cli.IntFlag{
			Name:    "jpeg-quality",
			Usage:   "quality of re-encoded jpeg images",
			Value:   d.Images.JPEGQuality,
			Sources: cli.EnvVars("PAVE_JPEG_QUALITY"),
		},
		&cli.IntFlag{
			Name:    "webp-quality",
			Usage:   "quality of generated webp images",
			Value:   d.Images.WebPQuality,
			Sources: cli.EnvVars("PAVE_WEBP_QUALITY"),
		},
		&cli.StringFlag{
			Name:    "js-target",
			Usage:   "javascript language target (es2015 ... es2022, esnext)",
			Value:   d.Scripts.Target,
			Sources: cli.EnvVars("PAVE_JS_TARGET"),
		},
	}
}

// Load builds options from defaults, the configuration file and explicitly
// set flags, in that order of precedence.
func Load(c *cli.Command) (*Options, error) {
	o := Defaults()
	if c.IsSet("root") {
		o.Root = c.String("root")
	}
	file := c.String("config")
	explicit := file != ""
	if !explicit {
		file = filepath.Join(o.Root, FILE)
	}
	if err := o.ReadFile(file, explicit); err != nil {
		return nil, err
	}
	if c.IsSet("root") {
		o.Root = c.String("root")
	}
	str := map[string]*string{
		"src":       &o.Source,
		"dist":      &o.Output,
		"listen":    &o.Listen,
		"log-level": &o.LogLevel,
		"log-file":  &o.LogFile,
		"sass":      &o.Sass.Binary,
		"js-target": &o.Scripts.Target,
	}
	for name, dst := range str {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("jpeg-quality") {
		o.Images.JPEGQuality = c.Int("jpeg-quality")
	}
	if c.IsSet("webp-quality") {
		o.Images.WebPQuality = c.Int("webp-quality")
	}
	root, err := filepath.Abs(o.Root)
	if err != nil {
		return nil, failure.Config("option", "root", err)
	}
	o.Root = root
	return o, o.Validate()
}

// ReadFile merges the YAML file at path into o. A missing file is only an
// error when required is true.
func (o *Options) ReadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return failure.Config("file", path, err)
	}
	if err := yaml.UnmarshalStrict(data, o); err != nil {
		return failure.Config("file", path, err)
	}
	return nil
}

var targets = map[string]struct{}{
	"es2015": {}, "es2016": {}, "es2017": {}, "es2018": {}, "es2019": {},
	"es2020": {}, "es2021": {}, "es2022": {}, "esnext": {},
}

func (o *Options) Validate() error {
	if o.Source == "" {
		return failure.Configf("option", "src", "must not be empty")
	}
	if o.Output == "" {
		return failure.Configf("option", "dist", "must not be empty")
	}
	src, dist := o.SourceDir(), o.OutputDir()
	if dist == src || isWithin(src, dist) || isWithin(dist, src) {
		return failure.Configf("option", "dist", "must not be, contain or be inside the source directory")
	}
	if !isWithin(dist, o.Root) {
		return failure.Configf("option", "dist", "must be inside and not equal to root")
	}
	if o.Listen == "" {
		return failure.Configf("option", "listen", "must not be empty")
	}
	if o.Sass.Binary == "" {
		return failure.Configf("option", "sass.binary", "must not be empty")
	}
	if q := o.Images.JPEGQuality; q < 1 || q > 100 {
		return failure.Configf("option", "images.jpeg_quality", "must be within 1..100")
	}
	if q := o.Images.WebPQuality; q < 1 || q > 100 {
		return failure.Configf("option", "images.webp_quality", "must be within 1..100")
	}
	if o.Images.CacheSize <= 0 {
		return failure.Configf("option", "images.cache_size", "must be positive")
	}
	if _, ok := targets[strings.ToLower(o.Scripts.Target)]; !ok {
		return failure.Configf("option", "scripts.target", "unknown target "+o.Scripts.Target)
	}
	return nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, filepath.Clean(path))
}

// isWithin reports whether path is strictly inside dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
