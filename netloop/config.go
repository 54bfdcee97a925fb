// File: netloop/config.go
// Manager configuration, adapted from the teacher's server/types.go +
// server/options.go functional-options pattern.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package netloop

import "github.com/momentics/netloop/control"

// Config holds the tunables for a Manager. Unlike the teacher's
// server.Config (which configures NUMA placement, executor worker
// counts, and reactor ring sizing for a multi-threaded server), this
// Config only carries what a single-threaded reactor needs.
type Config struct {
	// InitialRecvReserve is the minimum number of bytes reserved in a
	// connection's receive buffer tail before each read, per spec §4.3
	// step 4 ("after reserve of at least 2 KiB").
	InitialRecvReserve int
	// MaxEpollEvents bounds how many ready events Wait collects per
	// iteration.
	MaxEpollEvents int
	// Log is a diagnostic sink; defaults to a no-op so embedding
	// applications are never forced to take a logging dependency. No code
	// in this module writes to it.
	Log func(format string, args ...any)
	// Metrics, when non-nil, receives cumulative counters (bytes in/out,
	// connection churn, poll iterations, protocol errors), adapted from the
	// teacher's control.MetricsRegistry. Nil by default.
	Metrics *control.MetricsRegistry
	// Debug, when non-nil, has probes for connection count and tick
	// registered on it at NewManager time, adapted from the teacher's
	// control.DebugProbes. Nil by default.
	Debug *control.DebugProbes
}

// Option mutates a Config during NewManager.
type Option func(*Config)

// DefaultConfig returns the tunables used when NewManager is called with
// no options.
func DefaultConfig() Config {
	return Config{
		InitialRecvReserve: 2 * 1024,
		MaxEpollEvents:      256,
		Log:                 func(string, ...any) {},
	}
}

// WithInitialRecvReserve overrides the per-read receive-buffer reserve.
func WithInitialRecvReserve(n int) Option {
	return func(c *Config) { c.InitialRecvReserve = n }
}

// WithMaxEpollEvents overrides the per-iteration readiness batch size.
func WithMaxEpollEvents(n int) Option {
	return func(c *Config) { c.MaxEpollEvents = n }
}

// WithLog installs a diagnostic sink (e.g. log.Printf, or a slog-backed
// adapter); embedding applications own their own logging stack.
func WithLog(fn func(format string, args ...any)) Option {
	return func(c *Config) { c.Log = fn }
}

// WithMetrics attaches a control.MetricsRegistry the Manager updates as
// the corresponding events occur.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithDebug attaches a control.DebugProbes the Manager registers its own
// introspection probes on at construction time.
func WithDebug(d *control.DebugProbes) Option {
	return func(c *Config) { c.Debug = d }
}
