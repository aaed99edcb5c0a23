package coursesync

import (
	"errors"

	"github.com/praxishq/coursesync/internal/cachestore"
	"github.com/praxishq/coursesync/internal/remote"
	"github.com/praxishq/coursesync/internal/worker"
)

// Re-export shared sentinels so callers compare against a single symbol.
var (
	// ErrStorage matches any local persistence failure. Read paths degrade
	// to a cache miss instead of returning it.
	ErrStorage = cachestore.ErrStorage

	// ErrOffline matches remote transport failures. Surfaced only when
	// there is no local copy to fall back on.
	ErrOffline = remote.ErrOffline

	// ErrNotFound matches a missing remote item or entitlement.
	ErrNotFound = remote.ErrNotFound

	// ErrPermissionDenied matches a rejected remote credential.
	ErrPermissionDenied = remote.ErrPermissionDenied

	// ErrBackPressure is returned when the background queue is full.
	ErrBackPressure = worker.ErrQueueFull
)

// IsOffline reports whether err is a remote-unreachable error.
func IsOffline(err error) bool { return errors.Is(err, ErrOffline) }

// IsBackPressure reports whether err is a back-pressure error.
func IsBackPressure(err error) bool { return errors.Is(err, ErrBackPressure) }
