// Package membership maintains a short-TTL in-memory cache of which items an
// owner currently holds, diffing fresh reads against the baseline to avoid
// redundant writes and redundant downstream notifications.
package membership

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxishq/coursesync/internal/model"
	"github.com/praxishq/coursesync/internal/notify"
)

// Lister is the remote surface the cache refreshes from.
type Lister interface {
	Entitlements(ctx context.Context, ownerID string) ([]model.MembershipEntry, error)
}

// BaselineStore persists the per-owner baseline so a cold process can list
// owned items offline.
type BaselineStore interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	PutRaw(ctx context.Context, key string, raw []byte) error
}

type ownerCache struct {
	entries   []model.MembershipEntry
	fetchedAt time.Time
}

// Cache is the per-process ownership cache. One reader/writer per process;
// no cross-process coordination.
type Cache struct {
	ttl    time.Duration
	oracle Lister
	store  BaselineStore
	bus    *notify.Bus
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	owners map[string]*ownerCache
}

// New builds a Cache with the given TTL (5 minutes when zero).
func New(ttl time.Duration, oracle Lister, store BaselineStore, bus *notify.Bus, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		ttl:    ttl,
		oracle: oracle,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
		owners: make(map[string]*ownerCache),
	}
}

// WithClock overrides the time source. Test hook.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// ListOwned returns the owner's visible items: active unexpired entries plus
// every trial entry (expired trials stay visible for UX continuity). Within
// the TTL the cached baseline is served without a remote read; past it a
// fresh list is fetched and diffed in. Remote failures degrade to the stale
// baseline, falling back to the persisted one on a cold start.
func (c *Cache) ListOwned(ctx context.Context, ownerID string) ([]model.MembershipEntry, error) {
	now := c.now()

	c.mu.Lock()
	oc, ok := c.owners[ownerID]
	if ok && now.Sub(oc.fetchedAt) < c.ttl {
		out := filterOwned(oc.entries, now)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	fresh, err := c.oracle.Entitlements(ctx, ownerID)
	if err != nil {
		c.log.Debug().Err(err).Str("owner", ownerID).Msg("entitlement list failed, serving baseline")
		if baseline, ok := c.baseline(ctx, ownerID); ok {
			return filterOwned(baseline, now), nil
		}
		return nil, err
	}

	if _, err := c.Refresh(ctx, ownerID, fresh); err != nil {
		// Persistence trouble does not invalidate the fresh read.
		c.log.Warn().Err(err).Str("owner", ownerID).Msg("membership baseline write failed")
	}
	return filterOwned(fresh, now), nil
}

// Refresh diffs fresh against the current baseline and overwrites only when
// something changed: first by entry count, then per entry by expiry, status
// and trial fields. Returns whether a write occurred. Newly owned items are
// announced on the bus.
func (c *Cache) Refresh(ctx context.Context, ownerID string, fresh []model.MembershipEntry) (bool, error) {
	now := c.now()

	c.mu.Lock()
	baseline := c.baselineLocked(ctx, ownerID)
	changed := diff(baseline, fresh)
	newlyOwned := ownedDelta(baseline, fresh, now)

	if !changed {
		// Unchanged list still refreshes the TTL clock.
		c.owners[ownerID] = &ownerCache{entries: baseline, fetchedAt: now}
		c.mu.Unlock()
		return false, nil
	}
	c.owners[ownerID] = &ownerCache{entries: fresh, fetchedAt: now}
	c.mu.Unlock()

	var err error
	if raw, merr := json.Marshal(fresh); merr == nil {
		err = c.store.PutRaw(ctx, model.MembershipKey(ownerID), raw)
	} else {
		err = merr
	}

	for _, itemID := range newlyOwned {
		c.bus.Publish(notify.OwnershipReady, itemID)
	}
	return true, err
}

// Observe upserts a single entry into the in-memory baseline, keeping the
// cache warm when an entitlement rides along with a content download. The
// TTL clock is not advanced; the next full refresh still happens on time.
func (c *Cache) Observe(ownerID string, entry model.MembershipEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oc, ok := c.owners[ownerID]
	if !ok {
		return
	}
	for i := range oc.entries {
		if oc.entries[i].ItemID == entry.ItemID {
			oc.entries[i] = entry
			return
		}
	}
	oc.entries = append(oc.entries, entry)
}

// ActiveCount reports how many of the owner's entries are currently active.
// Expired trials are visible in ListOwned but excluded here.
func (c *Cache) ActiveCount(ctx context.Context, ownerID string) (int, error) {
	entries, err := c.ListOwned(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	now := c.now()
	n := 0
	for _, e := range entries {
		if e.Active(now) {
			n++
		}
	}
	return n, nil
}

// Invalidate drops the owner's in-memory baseline. Used by ClearAll.
func (c *Cache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, ownerID)
}

// baseline returns the current baseline, loading the persisted one on a
// cold start.
func (c *Cache) baseline(ctx context.Context, ownerID string) ([]model.MembershipEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.baselineLocked(ctx, ownerID)
	return entries, entries != nil
}

func (c *Cache) baselineLocked(ctx context.Context, ownerID string) []model.MembershipEntry {
	if oc, ok := c.owners[ownerID]; ok {
		return oc.entries
	}
	raw, err := c.store.GetRaw(ctx, model.MembershipKey(ownerID))
	if err != nil || raw == nil {
		return nil
	}
	var entries []model.MembershipEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn().Err(err).Str("owner", ownerID).Msg("persisted membership baseline unreadable")
		return nil
	}
	// Loaded baselines are immediately stale so the next ListOwned past the
	// zero fetchedAt refreshes remotely.
	c.owners[ownerID] = &ownerCache{entries: entries}
	return entries
}

// filterOwned drops expired non-trial entries; trial entries always pass.
func filterOwned(entries []model.MembershipEntry, now time.Time) []model.MembershipEntry {
	out := make([]model.MembershipEntry, 0, len(entries))
	for _, e := range entries {
		if e.Owned(now) {
			out = append(out, e)
		}
	}
	return out
}

// diff reports whether fresh differs from baseline: by count first, then per
// entry by (expiresAt, status, isTrial, trialExpiresAt).
func diff(baseline, fresh []model.MembershipEntry) bool {
	if len(baseline) != len(fresh) {
		return true
	}
	byID := make(map[string]model.MembershipEntry, len(baseline))
	for _, e := range baseline {
		byID[e.ItemID] = e
	}
	for _, f := range fresh {
		b, ok := byID[f.ItemID]
		if !ok || !b.Same(f) {
			return true
		}
	}
	return false
}

// ownedDelta lists items owned in fresh that were not owned in baseline.
func ownedDelta(baseline, fresh []model.MembershipEntry, now time.Time) []string {
	was := make(map[string]bool, len(baseline))
	for _, e := range baseline {
		if e.Owned(now) {
			was[e.ItemID] = true
		}
	}
	var out []string
	for _, e := range fresh {
		if e.Owned(now) && !was[e.ItemID] {
			out = append(out, e.ItemID)
		}
	}
	return out
}
