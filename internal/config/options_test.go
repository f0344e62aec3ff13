package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/vinceanalytics/pave/internal/failure"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Options){
		"empty src":       func(o *Options) { o.Source = "" },
		"dist equals src": func(o *Options) { o.Output = "src" },
		"dist inside src": func(o *Options) { o.Output = "src/out" },
		"dist below src":  func(o *Options) { o.Output = "./src/assets/dist" },
		"dist is root":    func(o *Options) { o.Output = "." },
		"dist escapes":    func(o *Options) { o.Output = "../dist" },
		"jpeg quality":    func(o *Options) { o.Images.JPEGQuality = 0 },
		"webp quality":    func(o *Options) { o.Images.WebPQuality = 101 },
		"cache size":      func(o *Options) { o.Images.CacheSize = 0 },
		"unknown target":  func(o *Options) { o.Scripts.Target = "es3" },
		"empty sass":      func(o *Options) { o.Sass.Binary = "" },
		"empty listen":    func(o *Options) { o.Listen = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := Defaults()
			mutate(o)
			err := o.Validate()
			require.Error(t, err)
			require.True(t, failure.Is(err, failure.ErrConfig))
		})
	}
}

func load(t *testing.T, args ...string) (*Options, error) {
	t.Helper()
	var o *Options
	var err error
	cmd := &cli.Command{
		Name:  "pave",
		Flags: Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			o, err = Load(c)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"pave"}, args...)))
	return o, err
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FILE), []byte(`
dist: public
listen: ":4000"
images:
  webp_quality: 60
`), 0600))

	o, err := load(t, "--root", root, "--listen", ":5000")
	require.NoError(t, err)
	require.Equal(t, root, o.Root)
	require.Equal(t, filepath.Join(root, "public"), o.OutputDir())
	require.Equal(t, filepath.Join(root, "src"), o.SourceDir())
	require.Equal(t, ":5000", o.Listen, "flags win over the file")
	require.Equal(t, 60, o.Images.WebPQuality)
	require.Equal(t, 75, o.Images.JPEGQuality)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FILE), []byte("colour: blue\n"), 0600))
	_, err := load(t, "--root", root)
	require.True(t, failure.Is(err, failure.ErrConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	root := t.TempDir()
	_, err := load(t, "--root", root, "--config", filepath.Join(root, "nope.yaml"))
	require.True(t, failure.Is(err, failure.ErrConfig))
}

func TestContext(t *testing.T) {
	o := Defaults()
	require.Same(t, o, Get(Set(context.Background(), o)))
}
