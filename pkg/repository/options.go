package repository

import (
	"log/slog"
	"time"
)

// Option configures a Repository.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	codec  Codec
	logger *slog.Logger
	now    func() time.Time
}

func defaultOptions() options {
	return options{
		codec:  JSONCodec{},
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithCodec replaces the JSON codec.
func WithCodec(c Codec) Option {
	return optionFunc(func(o *options) {
		if c != nil {
			o.codec = c
		}
	})
}

// WithLogger sets the logger used for job lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		if now != nil {
			o.now = now
		}
	})
}
