package syncer

import (
	"time"

	"github.com/google/uuid"
)

// Operation kinds a dedup lock can be held for. Today only full updates take
// the lock; the kind stays in the key so other background operations can
// dedupe independently later.
const opUpdate = "update"

type lockKey struct {
	itemID  string
	ownerID string
	op      string
}

// lockEntry marks one live background operation. In-memory only: loss on
// process restart is acceptable because restart implies no task is running.
type lockEntry struct {
	token      string
	acquiredAt time.Time
}

// acquireLocked inserts a lock for lk if none is held and returns its token.
// Returns ("", false) when the lock is already held. Caller holds c.mu; the
// check and the set share that single critical section.
func (c *Coordinator) acquireLocked(lk lockKey, now time.Time) (string, bool) {
	if _, held := c.locks[lk]; held {
		return "", false
	}
	token := uuid.NewString()
	c.locks[lk] = &lockEntry{token: token, acquiredAt: now}
	return token, true
}

// releaseLocked removes the lock for lk only while token still owns it, so a
// task finishing after its slot was reaped cannot release a newer holder's
// lock. Reports whether token was still the holder. Caller holds c.mu.
func (c *Coordinator) releaseLocked(lk lockKey, token string) bool {
	entry, held := c.locks[lk]
	if !held || entry.token != token {
		return false
	}
	delete(c.locks, lk)
	return true
}
