// Package failure classifies everything that can stop a build.
//
// Three kinds exist. TransformError means a collaborator rejected its input,
// IOError means the filesystem refused a read, write or remove and
// ConfigError means a task, graph, binding or option was declared wrong.
// Only ConfigError is fatal to the process; the other two end the run they
// happened in.
package failure

import (
	stderrors "errors"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	ErrTransform = errors.NewKind("transform %s rejected %s")
	ErrIO        = errors.NewKind("io %s %s")
	ErrConfig    = errors.NewKind("config %s %s")
)

// Failure is a classified error. Subject is the collaborator id for transform
// failures, the operation for io failures and the declaration kind for config
// failures. Source is the file, path or name the failure is about.
type Failure struct {
	Kind    *errors.Kind
	Subject string
	Source  string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.New(f.Subject, f.Source).Error()
	}
	return f.Kind.Wrap(f.Err, f.Subject, f.Source).Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// KindName returns a short stable name for the failure kind, used in logs and
// metric labels.
func (f *Failure) KindName() string {
	switch f.Kind {
	case ErrTransform:
		return "transform"
	case ErrIO:
		return "io"
	case ErrConfig:
		return "config"
	default:
		return "unknown"
	}
}

func Transform(collaborator, source string, err error) error {
	return &Failure{Kind: ErrTransform, Subject: collaborator, Source: source, Err: err}
}

func IO(op, path string, err error) error {
	return &Failure{Kind: ErrIO, Subject: op, Source: path, Err: err}
}

func Config(subject, name string, err error) error {
	return &Failure{Kind: ErrConfig, Subject: subject, Source: name, Err: err}
}

// Configf is Config with a formatted cause.
func Configf(subject, name, msg string) error {
	return Config(subject, name, stderrors.New(msg))
}

// As returns the first Failure in err's chain.
func As(err error) (*Failure, bool) {
	var f *Failure
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Is reports whether err carries a Failure of the given kind.
func Is(err error, kind *errors.Kind) bool {
	f, ok := As(err)
	return ok && f.Kind == kind
}
