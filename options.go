package coursesync

// This file defines the functional options that configure an Engine during
// construction. Keeping them in a standalone file makes it easy to discover
// all available knobs at a glance.

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxishq/coursesync/internal/cachestore"
	"github.com/praxishq/coursesync/internal/syncer"
	"github.com/praxishq/coursesync/internal/worker"
)

// Option configures an Engine during construction in New.
//
// Options are applied before the authorization transport wrapper is
// installed, so transport-related options (like debug logging) are placed
// underneath the API-key wrapper. Options must be deterministic and
// side-effect free.
type Option func(*Engine) error

// WithHTTPTimeout sets the underlying http.Client timeout used for remote
// calls. Prefer per-request context deadlines; this is a coarse safety net.
// The value must be greater than zero.
func WithHTTPTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		e.http.Timeout = d
		return nil
	}
}

// WithDebugLogging wraps the engine's transport so each request/response is
// logged when enabled is true. Not for production use.
func WithDebugLogging(enabled bool) Option {
	return func(e *Engine) error {
		if enabled {
			e.http.Transport = &debugTransport{base: e.http.Transport}
		}
		return nil
	}
}

// WithLogger replaces the default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}

// WithSyncConfig overrides the coordinator thresholds (stuck-lock reap,
// display reset, settle delay, default TTL). Zero fields keep their defaults;
// a negative settle delay disables the pre-refresh pause entirely.
func WithSyncConfig(cfg syncer.Config) Option {
	return func(e *Engine) error {
		e.syncCfg = cfg
		return nil
	}
}

// WithWorkerConfig overrides the background pool tunables instead of reading
// them from CSYNC_* environment variables.
func WithWorkerConfig(cfg worker.Config) Option {
	return func(e *Engine) error {
		e.workerCfg = cfg
		e.workerCfgSet = true
		return nil
	}
}

// WithMembershipTTL sets how long an owner's entitlement list is served from
// memory before a fresh remote read (default 5 minutes).
func WithMembershipTTL(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("membership TTL must be > 0")
		}
		e.membershipTTL = d
		return nil
	}
}

// WithReapInterval sets the period of the stuck-lock sweep (default one
// minute). On-access reaping happens regardless.
func WithReapInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("reap interval must be > 0")
		}
		e.reapInterval = d
		return nil
	}
}

// WithStore injects a pre-opened cache store. The engine takes ownership and
// closes it on Close.
func WithStore(st *cachestore.Store) Option {
	return func(e *Engine) error {
		e.store = st
		return nil
	}
}

// WithOracle injects a remote oracle implementation. Test hook, also useful
// for callers that front the backend with their own client.
func WithOracle(o Oracle) Option {
	return func(e *Engine) error {
		e.oracle = o
		return nil
	}
}
