package syncer

import (
	"context"
	"encoding/json"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/praxishq/coursesync/internal/model"
	"github.com/praxishq/coursesync/internal/notify"
	"github.com/praxishq/coursesync/internal/remote"
)

// beginUpdate atomically acquires the dedup lock and schedules the background
// refresh. Returns false when another task already holds the lock (duplicate
// suppression); the caller then serves the stale copy tagged Updating.
func (c *Coordinator) beginUpdate(itemID, ownerID string, item *model.CachedItem, replace bool) bool {
	lk := lockKey{itemID: itemID, ownerID: ownerID, op: opUpdate}

	c.mu.Lock()
	now := c.now()
	token, ok := c.acquireLocked(lk, now)
	if !ok {
		c.mu.Unlock()
		return false
	}
	st := c.statusLocked(itemID, ownerID, item)
	st.State = model.StateUpdating
	st.LastUpdated = now
	c.mu.Unlock()

	// Background tasks outlive the triggering request; they always run to
	// completion and release their lock.
	job := jobFunc(func(ctx context.Context) error {
		if err := c.runUpdate(ctx, itemID, ownerID, lk, token, replace, true); err != nil {
			// Terminal by policy: a Failed status is only retried by an
			// explicit caller-invoked Retry.
			return backoff.Permanent(err)
		}
		return nil
	})
	if err := c.pool.Submit(context.Background(), PairKey(ownerID, itemID), job); err != nil {
		// The task never started; put the slot back the way we found it.
		c.log.Warn().Err(err).Str("item", itemID).Str("owner", ownerID).Msg("could not schedule update")
		c.mu.Lock()
		if c.releaseLocked(lk, token) {
			st.State = model.StateReady
		}
		c.mu.Unlock()
		return false
	}
	return true
}

type jobFunc func(ctx context.Context) error

func (f jobFunc) Run(ctx context.Context) error { return f(ctx) }

// Download performs the explicit first fetch for an item with no local copy.
// Unlike GetLocalOrRefresh it is synchronous and surfaces remote errors,
// because there is no stale copy to fall back on.
func (c *Coordinator) Download(ctx context.Context, itemID, ownerID string) (Result, error) {
	lk := lockKey{itemID: itemID, ownerID: ownerID, op: opUpdate}

	c.mu.Lock()
	now := c.now()
	token, ok := c.acquireLocked(lk, now)
	if !ok {
		c.mu.Unlock()
		// A refresh is already in flight for this pair; let it finish.
		return Result{State: model.StateUpdating}, nil
	}
	st := c.statusLocked(itemID, ownerID, nil)
	st.State = model.StateUpdating
	st.LastUpdated = now
	c.mu.Unlock()

	if err := c.runUpdate(ctx, itemID, ownerID, lk, token, false, false); err != nil {
		return Result{State: model.StateFailed}, err
	}
	item, err := c.store.Get(ctx, model.ItemKey(ownerID, itemID))
	if err != nil {
		return Result{State: model.StateFailed}, err
	}
	return Result{Item: item, State: model.StateReady}, nil
}

// runUpdate is the single update path: fetch content, replace the cached
// entry wholesale, flip the status, release the lock, notify. replace forces
// deletion of the previous entry first (cadence rollover must not mix stale
// and fresh content); settle applies the short pre-I/O delay used by
// background refreshes.
func (c *Coordinator) runUpdate(ctx context.Context, itemID, ownerID string, lk lockKey, token string, replace, settle bool) error {
	if settle && c.cfg.SettleDelay > 0 {
		t := time.NewTimer(c.cfg.SettleDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	content, err := c.oracle.Content(ctx, itemID, ownerID)
	if err != nil {
		c.finishFailed(itemID, ownerID, lk, token, err)
		return err
	}

	// Refresh the ownership record opportunistically; failure here never
	// fails the update.
	ent, entErr := c.oracle.Entitlement(ctx, ownerID, itemID)
	if entErr != nil {
		c.log.Debug().Err(entErr).Str("item", itemID).Msg("entitlement refresh skipped")
	} else if ent != nil && c.sink != nil {
		c.sink.Observe(ownerID, *ent)
	}

	now := c.now()
	item := c.buildItem(itemID, ownerID, content, ent, now)

	// Re-check the lock token before the final write: if the slot was
	// reaped and re-acquired, a newer task owns it and this result is
	// discarded (last update wins).
	c.mu.Lock()
	entry, held := c.locks[lk]
	if !held || entry.token != token {
		c.mu.Unlock()
		updatesTotal.WithLabelValues("superseded").Inc()
		c.log.Debug().Str("item", itemID).Str("owner", ownerID).Msg("update superseded after lock reap, discarding result")
		return nil
	}
	c.mu.Unlock()

	key := model.ItemKey(ownerID, itemID)
	if replace {
		if derr := c.store.Delete(ctx, key); derr != nil {
			c.finishFailed(itemID, ownerID, lk, token, derr)
			return derr
		}
	}
	if perr := c.store.Put(ctx, key, item); perr != nil {
		c.finishFailed(itemID, ownerID, lk, token, perr)
		return perr
	}

	c.mu.Lock()
	if c.releaseLocked(lk, token) {
		st := c.statusLocked(itemID, ownerID, &item)
		st.State = model.StateReady
		st.DownloadedVersion = item.LocalVersion
		st.LastUpdated = c.now()
	}
	c.mu.Unlock()

	updatesTotal.WithLabelValues("complete").Inc()
	c.bus.Publish(notify.UpdateComplete, itemID)
	return nil
}

// buildItem converts the remote payload into the replacement cache entry.
// Malformed payloads are non-fatal: the entry degrades to a minimal record so
// the item stays visible to its owner.
func (c *Coordinator) buildItem(itemID, ownerID string, content *remote.ItemContent, ent *model.MembershipEntry, now time.Time) model.CachedItem {
	expiresAt := content.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.cfg.DefaultTTL)
	}
	var cadKey *string
	if content.Cadenced {
		k := model.CadenceKey(now)
		cadKey = &k
	}

	minimal := content.MinimalRecord || (ent != nil && ent.MinimalRecord)
	if !minimal && !json.Valid(content.Payload) {
		c.log.Warn().Str("item", itemID).Str("owner", ownerID).Msg("payload failed sanity check, storing minimal record")
		minimal = true
	}
	if minimal {
		return model.NewMinimalItem(itemID, ownerID, content.Version, now, expiresAt, cadKey)
	}

	return model.CachedItem{
		ItemID:       itemID,
		OwnerID:      ownerID,
		Payload:      content.Payload,
		DownloadedAt: now,
		ExpiresAt:    expiresAt,
		LocalVersion: content.Version,
		CadenceKey:   cadKey,
		SizeBytes:    int64(len(content.Payload)),
		Compressed:   content.Compressed,
	}
}

// finishFailed flips the slot to Failed, unless the lock was reaped and a
// newer task owns it, in which case this task's outcome is irrelevant.
func (c *Coordinator) finishFailed(itemID, ownerID string, lk lockKey, token string, cause error) {
	c.mu.Lock()
	released := c.releaseLocked(lk, token)
	if released {
		st := c.statusLocked(itemID, ownerID, nil)
		st.State = model.StateFailed
		st.LastUpdated = c.now()
	}
	c.mu.Unlock()

	if !released {
		updatesTotal.WithLabelValues("superseded").Inc()
		return
	}
	updatesTotal.WithLabelValues("failed").Inc()
	c.log.Error().Err(cause).Str("item", itemID).Str("owner", ownerID).Msg("background update failed")
	c.bus.Publish(notify.UpdateFailed, itemID)
}
