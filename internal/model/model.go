// Package model holds the domain entities shared by the sync engine's
// internal components.
package model

import (
	"fmt"
	"time"
)

// SyncState is the per-(item, owner) synchronization state machine.
type SyncState string

const (
	StateReady    SyncState = "ready"
	StateUpdating SyncState = "updating"
	StateFailed   SyncState = "failed"

	// StateNotPresent is reported when no local copy exists yet. It is a
	// read-side answer, never stored in a VersionStatus.
	StateNotPresent SyncState = "not_present"
)

// CachedItem is one owner's locally stored copy of one catalog item.
//
// Replacement is wholesale: a refresh writes a brand-new CachedItem, it never
// merges fields into an existing one. The only constructor that intentionally
// leaves Payload empty is NewMinimalItem.
type CachedItem struct {
	ItemID  string `json:"itemId"`
	OwnerID string `json:"ownerId"`

	// Payload is the opaque downloaded content. Empty for minimal records
	// (content delivered out of band).
	Payload []byte `json:"payload,omitempty"`

	DownloadedAt time.Time `json:"downloadedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`

	// LocalVersion is the version tag captured at last successful download.
	LocalVersion string `json:"localVersion"`

	// CadenceKey identifies which cadence period this copy corresponds to,
	// for items whose content rotates by period (nil for non-cadence items).
	CadenceKey *string `json:"cadenceKey,omitempty"`

	SizeBytes  int64 `json:"sizeBytes"`
	Compressed bool  `json:"compressed"`
}

// NewMinimalItem builds a metadata-only cached entry for items whose content
// is delivered out of band. It populates identity, version and lifecycle
// fields and deliberately leaves Payload, SizeBytes and Compressed zero.
func NewMinimalItem(itemID, ownerID, version string, now, expiresAt time.Time, cadenceKey *string) CachedItem {
	return CachedItem{
		ItemID:       itemID,
		OwnerID:      ownerID,
		DownloadedAt: now,
		ExpiresAt:    expiresAt,
		LocalVersion: version,
		CadenceKey:   cadenceKey,
	}
}

// Expired reports whether the entry is past its expiry and therefore
// eligible for eviction.
func (c CachedItem) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// StaleForCadence reports whether the copy belongs to a cadence period other
// than current. Non-cadence items are never cadence-stale.
func (c CachedItem) StaleForCadence(current string) bool {
	return c.CadenceKey != nil && *c.CadenceKey != current
}

// VersionStatus tracks the sync state machine for one (item, owner) pair.
// It is in-memory only; loss on restart is acceptable because restart implies
// no background task is running.
type VersionStatus struct {
	State             SyncState
	DownloadedVersion string
	LastChecked       time.Time
	LastUpdated       time.Time
}

// MembershipStatus is the lifecycle state of an ownership record.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipCancelled MembershipStatus = "cancelled"
)

// MembershipEntry is an owner's entitlement record for one item.
type MembershipEntry struct {
	ItemID         string           `json:"itemId"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	IsTrial        bool             `json:"isTrial"`
	TrialExpiresAt *time.Time       `json:"trialExpiresAt,omitempty"`
	Status         MembershipStatus `json:"status"`

	// MinimalRecord marks items whose content is delivered out of band and
	// must not be downloaded into the local cache.
	MinimalRecord bool `json:"minimalRecord,omitempty"`
}

// Owned reports whether the entry grants visibility of the item. Trial items
// stay visible even once expired or cancelled; regular items require an
// active, unexpired record.
func (m MembershipEntry) Owned(now time.Time) bool {
	if m.IsTrial {
		return true
	}
	return m.Status == MembershipActive && m.ExpiresAt.After(now)
}

// Active reports whether the entry counts toward the "currently active"
// total. Expired trials are visible but not active.
func (m MembershipEntry) Active(now time.Time) bool {
	if m.IsTrial {
		return m.TrialExpiresAt == nil || m.TrialExpiresAt.After(now)
	}
	return m.Status == MembershipActive && m.ExpiresAt.After(now)
}

// Same reports whether two entries are equal for diffing purposes. Only the
// fields that matter to consumers participate: expiry, status and trial data.
func (m MembershipEntry) Same(o MembershipEntry) bool {
	if m.ItemID != o.ItemID || m.Status != o.Status || m.IsTrial != o.IsTrial {
		return false
	}
	if !m.ExpiresAt.Equal(o.ExpiresAt) {
		return false
	}
	if (m.TrialExpiresAt == nil) != (o.TrialExpiresAt == nil) {
		return false
	}
	if m.TrialExpiresAt != nil && !m.TrialExpiresAt.Equal(*o.TrialExpiresAt) {
		return false
	}
	return true
}

// CadenceKey returns the cadence period identifier for t, an ISO year-week
// label such as "2026-W35" computed in UTC. Items that rotate content weekly
// compare their stored key against this value.
func CadenceKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ItemKey is the cache-store key for one owner's copy of one item. All engine
// keys live under the "item/" and "membership/" namespaces so a full wipe can
// enumerate exactly the engine's own rows.
func ItemKey(ownerID, itemID string) string {
	return fmt.Sprintf("item/%s/%s", ownerID, itemID)
}

// OwnerPrefix is the cache-store key prefix covering every item cached for
// one owner.
func OwnerPrefix(ownerID string) string {
	return fmt.Sprintf("item/%s/", ownerID)
}

// MembershipKey is the cache-store key for an owner's persisted membership
// baseline.
func MembershipKey(ownerID string) string {
	return fmt.Sprintf("membership/%s", ownerID)
}
