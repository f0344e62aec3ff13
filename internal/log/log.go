package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// New returns a logger that writes human readable lines to stderr and, when
// file is not nil, JSON lines to file.
func New(level string, file io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if file != nil {
		w = zerolog.MultiLevelWriter(w, file)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func Set(ctx context.Context, lg *zerolog.Logger) context.Context {
	return lg.WithContext(ctx)
}

// Get returns the logger carried by ctx. A context without one yields a
// disabled logger.
func Get(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// With returns ctx carrying a child logger with the extra string field.
func With(ctx context.Context, key, value string) context.Context {
	lg := Get(ctx).With().Str(key, value).Logger()
	return Set(ctx, &lg)
}
