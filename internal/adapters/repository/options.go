package repository

import "github.com/okian/feedrank/pkg/logger"

type options struct {
	log          logger.Logger
	maxBatchRead int
}

func defaultOptions() options {
	return options{log: logger.NewNop(), maxBatchRead: MaxBatchRead}
}

// Option applies a configuration option to a store constructor.
type Option func(*options)

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxBatchRead overrides the per-call id limit of GetAggregates.
func WithMaxBatchRead(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBatchRead = n
		}
	}
}
