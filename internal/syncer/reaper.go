package syncer

import (
	"context"
	"time"

	"github.com/praxishq/coursesync/internal/model"
)

// reapLocked clears a stuck lock and resets its status slot so the caller
// can re-evaluate freshness. Caller holds c.mu.
//
// Supervision data from the pool distinguishes a task that is still running
// (merely slow) from one that died without releasing its lock; either way
// the slot is reclaimed, and the original task's token recheck keeps it from
// corrupting whatever happens next.
func (c *Coordinator) reapLocked(lk lockKey, st *model.VersionStatus, age time.Duration) {
	_, stillRunning := c.pool.Running(PairKey(lk.ownerID, lk.itemID))
	delete(c.locks, lk)
	st.State = model.StateReady
	reapedLocksTotal.Inc()
	c.log.Warn().
		Str("item", lk.itemID).
		Str("owner", lk.ownerID).
		Dur("age", age).
		Bool("task_running", stillRunning).
		Msg("reaped stuck update lock")
}

// ReapStale sweeps every held lock and clears those older than the stuck
// threshold. GetLocalOrRefresh performs the same check on access; the sweep
// exists so slots nobody reads again still recover. Returns the number of
// locks reaped.
func (c *Coordinator) ReapStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	reaped := 0
	for lk, entry := range c.locks {
		age := now.Sub(entry.acquiredAt)
		if age <= c.cfg.StuckAfter {
			continue
		}
		st := c.statusLocked(lk.itemID, lk.ownerID, nil)
		c.reapLocked(lk, st, age)
		reaped++
	}
	return reaped
}

// RunReaper sweeps periodically until ctx is cancelled.
func (c *Coordinator) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ReapStale()
		}
	}
}
