// Package cmd wires configuration, logging, the pipeline, the watch router
// and the dev server into the pave command line.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/vinceanalytics/pave/internal/config"
	"github.com/vinceanalytics/pave/internal/failure"
	"github.com/vinceanalytics/pave/internal/log"
	"github.com/vinceanalytics/pave/internal/pipeline"
	"github.com/vinceanalytics/pave/internal/server"
	"github.com/vinceanalytics/pave/internal/version"
)

// Run loads an optional .env file from the working directory and runs the
// application with args.
func Run(ctx context.Context, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return App().Run(ctx, args)
}

func App() *cli.Command {
	return &cli.Command{
		Name:        "pave",
		Usage:       "builds a static site and serves it with live reload",
		Description: description,
		Version:     version.Build().String(),
		Flags:       config.Flags(),
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "runs a full build and exits",
				Action: build,
			},
			version.Cmd(),
		},
		Action: develop,
	}
}

const description = `Without a command pave runs a full build, serves the output directory
and rebuilds the affected assets whenever a source file changes.`

func build(ctx context.Context, c *cli.Command) error {
	ctx, o, done, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer done()
	p, err := pipeline.New(o)
	if err != nil {
		return err
	}
	return p.Build(ctx)
}

func develop(ctx context.Context, c *cli.Command) error {
	ctx, o, done, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer done()
	p, err := pipeline.New(o)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lg := log.Get(ctx)
	if err := p.Build(ctx); err != nil {
		if failure.Is(err, failure.ErrConfig) {
			return err
		}
		lg.Error().Err(err).Msg("initial build failed, serving and watching anyway")
	}
	svr := server.New(o.OutputDir(), o.Listen)
	if err := svr.Start(ctx); err != nil {
		return err
	}
	r, err := p.Router(svr)
	if err != nil {
		svr.Stop(context.Background())
		return err
	}
	werr := r.Watch(ctx, o.SourceDir())
	cancel()

	lg.Info().Msg("shutting down")
	sctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := svr.Stop(sctx); err != nil {
		lg.Warn().Err(err).Msg("dev server did not stop cleanly")
	}
	r.Wait()
	return werr
}

// setup resolves options and installs the logger in ctx. done flushes and
// closes the log file, if any.
func setup(ctx context.Context, c *cli.Command) (context.Context, *config.Options, func(), error) {
	done := func() {}
	o, err := config.Load(c)
	if err != nil {
		return ctx, nil, done, err
	}
	var file *log.File
	if o.LogFile != "" {
		file, err = log.OpenFile(o.LogFile)
		if err != nil {
			return ctx, nil, done, failure.IO("open", o.LogFile, err)
		}
		done = func() { file.Close() }
	}
	var w io.Writer
	if file != nil {
		w = file
	}
	lg, err := log.New(o.LogLevel, w)
	if err != nil {
		done()
		return ctx, nil, func() {}, failure.Config("option", "log_level", err)
	}
	ctx = log.Set(ctx, &lg)
	lg.Debug().Str("root", o.Root).Str("src", o.SourceDir()).Str("dist", o.OutputDir()).Msg("configured")
	return ctx, o, done, nil
}
