package lineage

import (
	"fmt"
	"log/slog"
)

// KeyStrategy selects how colliding registry keys are handled.
type KeyStrategy string

const (
	// KeysScoped qualifies a key taken by a different entity with the
	// declaring block's path.
	KeysScoped KeyStrategy = "scoped"
	// KeysFlat lets a later registration replace an earlier one.
	KeysFlat KeyStrategy = "flat"
)

// ParseKeyStrategy parses "scoped" or "flat". The empty string selects
// KeysScoped.
func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch KeyStrategy(s) {
	case "", KeysScoped:
		return KeysScoped, nil
	case KeysFlat:
		return KeysFlat, nil
	}
	return "", fmt.Errorf("invalid key strategy %q: must be one of: scoped, flat", s)
}

type options struct {
	keys      KeyStrategy
	resultKey string
	strict    bool
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		keys:      KeysScoped,
		resultKey: DefaultResultKey,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// Option configures Build.
type Option func(*options)

// WithKeyStrategy sets the registry key strategy.
func WithKeyStrategy(k KeyStrategy) Option {
	return func(o *options) {
		if k != "" {
			o.keys = k
		}
	}
}

// WithResultKey overrides the key of the result entity.
func WithResultKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.resultKey = key
		}
	}
}

// WithStrict makes Build fail on shapes it cannot trace instead of
// recording a diagnostic.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
