package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var esTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Transpile lowers modern JavaScript to target and minifies it.
func Transpile(target string) Adapter {
	t, ok := esTargets[strings.ToLower(target)]
	if !ok {
		t = api.ES2015
	}
	return Each("esbuild", func(_ context.Context, f *File) (*File, error) {
		result := api.Transform(string(f.Data), api.TransformOptions{
			Loader:            api.LoaderJS,
			Target:            t,
			Sourcefile:        f.Path,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			LogLevel:          api.LogLevelSilent,
		})
		if len(result.Errors) > 0 {
			e := make([]error, len(result.Errors))
			for i, m := range result.Errors {
				e[i] = esMessage(m)
			}
			return nil, errors.Join(e...)
		}
		return &File{Path: f.Path, Source: f.Source, Data: result.Code}, nil
	})
}

func esMessage(m api.Message) error {
	if m.Location == nil {
		return errors.New(m.Text)
	}
	return fmt.Errorf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
}
