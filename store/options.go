package store

import (
	"log/slog"

	"github.com/stevemurr/collection-server/logging"
)

// Option configures a backend.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	readOnly bool
}

// WithLogger sets the logger used for fail-open read warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// ReadOnly opens the JSON backend without taking the data directory lock.
// Every write fails. Inspection commands use it alongside a running server.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
