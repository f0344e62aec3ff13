package transform

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// Sass compiles SCSS with the dart-sass executable at binary. Partials, files
// whose name starts with an underscore, are only reachable through @use and
// @import and are dropped from the output.
func Sass(binary string) Adapter {
	return Each("sass", func(ctx context.Context, f *File) (*File, error) {
		if strings.HasPrefix(path.Base(f.Path), "_") {
			return nil, nil
		}
		args := []string{
			"--stdin",
			"--style=compressed",
			"--no-source-map",
			"--no-unicode",
		}
		if f.Source != "" {
			args = append(args, "--load-path="+filepath.Dir(f.Source))
		}
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Stdin = bytes.NewReader(f.Data)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, errors.New(msg)
			}
			return nil, err
		}
		return f.WithExt(".css", stdout.Bytes()), nil
	})
}
