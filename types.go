package coursesync

import (
	"github.com/praxishq/coursesync/internal/cachestore"
	"github.com/praxishq/coursesync/internal/model"
	"github.com/praxishq/coursesync/internal/notify"
	"github.com/praxishq/coursesync/internal/remote"
	"github.com/praxishq/coursesync/internal/syncer"
)

// Public type aliases so consumers can import only the coursesync package.
type (
	// Domain entities
	CachedItem      = model.CachedItem
	MembershipEntry = model.MembershipEntry
	VersionStatus   = model.VersionStatus
	ItemContent     = remote.ItemContent

	// Sync surface
	SyncState = model.SyncState
	Options   = syncer.Options
	Result    = syncer.Result

	// Storage reporting
	IndexEntry = cachestore.IndexEntry

	// Notifications
	NotificationKind = notify.Kind
)

// Sync states.
const (
	StateReady      = model.StateReady
	StateUpdating   = model.StateUpdating
	StateFailed     = model.StateFailed
	StateNotPresent = model.StateNotPresent
)

// Notification kinds.
const (
	UpdateComplete = notify.UpdateComplete
	UpdateFailed   = notify.UpdateFailed
	OwnershipReady = notify.OwnershipReady
)

// Membership statuses.
const (
	MembershipActive    = model.MembershipActive
	MembershipCancelled = model.MembershipCancelled
)

// CadenceKey exposes the current cadence period label, so callers can label
// cadence-bearing content the same way the engine does.
var CadenceKey = model.CadenceKey
