package muxserve

import "go.uber.org/zap"

const (
	// DefaultEventBatch is the number of readiness events fetched by one wait.
	DefaultEventBatch = 1024
	// DefaultLogWorkers is the size of the request-log worker pool.
	DefaultLogWorkers = 4
)

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		EventBatch:   DefaultEventBatch,
		LockOSThread: true,
		LogWorkers:   DefaultLogWorkers,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.EventBatch <= 0 {
		opts.EventBatch = DefaultEventBatch
	}
	return opts
}

// Options are set when the server starts.
type Options struct {
	// EventBatch bounds how many readiness events are handled per loop iteration.
	// Events beyond the batch stay pending in the kernel and show up on the next wait.
	EventBatch int

	// ReusePort sets SO_REUSEPORT on the listening socket.
	ReusePort bool

	// TCPNoDelay disables Nagle's algorithm on accepted connections.
	TCPNoDelay bool

	// LockOSThread pins the event loop to the OS thread that calls Serve.
	LockOSThread bool

	// Logger replaces the default logger.
	Logger *zap.Logger

	// LogWorkers is the number of goroutines writing request diagnostics.
	// Zero logs requests inline on the event-loop.
	LogWorkers int
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithEventBatch sets up the event batch capacity.
func WithEventBatch(n int) Option {
	return func(opts *Options) {
		opts.EventBatch = n
	}
}

// WithReusePort sets up SO_REUSEPORT socket option.
func WithReusePort(reusePort bool) Option {
	return func(opts *Options) {
		opts.ReusePort = reusePort
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(noDelay bool) Option {
	return func(opts *Options) {
		opts.TCPNoDelay = noDelay
	}
}

// WithLockOSThread sets up LockOSThread mode for the event-loop.
func WithLockOSThread(lockOSThread bool) Option {
	return func(opts *Options) {
		opts.LockOSThread = lockOSThread
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithLogWorkers sets up the size of the request-log worker pool.
func WithLogWorkers(n int) Option {
	return func(opts *Options) {
		opts.LogWorkers = n
	}
}
