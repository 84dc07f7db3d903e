package model

import (
	"time"

	"github.com/apex/log"

	"github.com/Bystroushaak/RebbleOS/internal/runtimex"
)

// Default values for the protocol tunables. The documented design fixes
// none of these, so they are configuration rather than constants.
const (
	// DefaultWindowSize is the default bound on outstanding unacknowledged
	// data frames.
	DefaultWindowSize = 4

	// MaxWindowSize is the hard ceiling on the window: half the sequence
	// space, so in-flight sequence numbers are never ambiguous under
	// wraparound.
	MaxWindowSize = SequenceSpace / 2

	// DefaultRetransmitTimeout is how long an outstanding data frame may
	// go unacknowledged before it is retransmitted.
	DefaultRetransmitTimeout = 500 * time.Millisecond

	// DefaultRetryCeiling is how many retransmissions of a single frame we
	// tolerate before treating the session as desynchronized and forcing
	// a reset.
	DefaultRetryCeiling = 10

	// DefaultReadyWaitTimeout bounds each wait for the transport to signal
	// that it is ready to send again. The wait is retried, not abandoned.
	DefaultReadyWaitTimeout = 250 * time.Millisecond
)

// Config contains options for the PPoGATT stack.
type Config struct {
	// logger will be used to log events.
	logger Logger

	// windowSize bounds the outstanding window.
	windowSize int

	// retransmitTimeout is the per-frame retransmission deadline.
	retransmitTimeout time.Duration

	// retryCeiling is the retransmission ceiling before a forced reset.
	retryCeiling int

	// readyWaitTimeout bounds each wait for transport readiness.
	readyWaitTimeout time.Duration

	// initiateReset tells the stack to open the session with a reset
	// handshake rather than waiting for the peer to start one.
	initiateReset bool
}

// NewConfig returns a Config ready to initialize a PPoGATT stack.
func NewConfig(options ...Option) *Config {
	cfg := &Config{
		logger:            log.Log,
		windowSize:        DefaultWindowSize,
		retransmitTimeout: DefaultRetransmitTimeout,
		retryCeiling:      DefaultRetryCeiling,
		readyWaitTimeout:  DefaultReadyWaitTimeout,
		initiateReset:     false,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// Option is an option you can pass to initialize the stack.
type Option func(config *Config)

// WithLogger configures the passed [Logger].
func WithLogger(logger Logger) Option {
	return func(config *Config) {
		config.logger = logger
	}
}

// WithWindowSize configures the outstanding-window bound. Values larger
// than half the sequence space would make retransmitted sequence numbers
// ambiguous, so they are rejected outright.
func WithWindowSize(n int) Option {
	return func(config *Config) {
		runtimex.PanicIfTrue(n < 1 || n > MaxWindowSize, "window size out of range")
		config.windowSize = n
	}
}

// WithRetransmitTimeout configures the retransmission deadline.
func WithRetransmitTimeout(d time.Duration) Option {
	return func(config *Config) {
		config.retransmitTimeout = d
	}
}

// WithRetryCeiling configures how many retransmissions of one frame we
// attempt before forcing a protocol reset.
func WithRetryCeiling(n int) Option {
	return func(config *Config) {
		config.retryCeiling = n
	}
}

// WithReadyWaitTimeout configures the bounded wait for transport readiness.
func WithReadyWaitTimeout(d time.Duration) Option {
	return func(config *Config) {
		config.readyWaitTimeout = d
	}
}

// WithInitiateReset makes the stack start the reset handshake as soon as
// its workers come up.
func WithInitiateReset(initiate bool) Option {
	return func(config *Config) {
		config.initiateReset = initiate
	}
}

// Logger returns the configured logger.
func (c *Config) Logger() Logger {
	return c.logger
}

// WindowSize returns the configured window bound.
func (c *Config) WindowSize() int {
	return c.windowSize
}

// RetransmitTimeout returns the configured retransmission deadline.
func (c *Config) RetransmitTimeout() time.Duration {
	return c.retransmitTimeout
}

// RetryCeiling returns the configured retransmission ceiling.
func (c *Config) RetryCeiling() int {
	return c.retryCeiling
}

// ReadyWaitTimeout returns the configured transport-readiness wait bound.
func (c *Config) ReadyWaitTimeout() time.Duration {
	return c.readyWaitTimeout
}

// InitiateReset returns whether this stack opens the reset handshake.
func (c *Config) InitiateReset() bool {
	return c.initiateReset
}
