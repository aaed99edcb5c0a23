// Package syncer implements the content synchronization coordinator: it
// answers "is my local copy current?", triggers full re-downloads on version
// or cadence mismatch, runs updates in the background, and guards against
// duplicate concurrent work per (item, owner) pair.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxishq/coursesync/internal/model"
	"github.com/praxishq/coursesync/internal/notify"
	"github.com/praxishq/coursesync/internal/remote"
)

// Oracle is the read-only remote surface the coordinator consumes.
// *remote.Client satisfies it; tests inject fakes.
type Oracle interface {
	PublishedVersion(ctx context.Context, itemID string) (string, error)
	Entitlement(ctx context.Context, ownerID, itemID string) (*model.MembershipEntry, error)
	Content(ctx context.Context, itemID, ownerID string) (*remote.ItemContent, error)
}

// Store is the durable cache surface the coordinator consumes.
type Store interface {
	Get(ctx context.Context, key string) (*model.CachedItem, error)
	Put(ctx context.Context, key string, item model.CachedItem) error
	Delete(ctx context.Context, key string) error
	Touch(ctx context.Context, key string) error
}

// Pool runs supervised background jobs with per-key FIFO ordering.
type Pool interface {
	Submit(ctx context.Context, key string, job Job) error
	Running(key string) (time.Time, bool)
}

// Job mirrors worker.Job so the coordinator does not import the pool
// implementation directly.
type Job interface {
	Run(ctx context.Context) error
}

// EntitlementSink receives ownership records observed during content
// downloads, so the membership layer stays warm without extra round trips.
type EntitlementSink interface {
	Observe(ownerID string, entry model.MembershipEntry)
}

// Options modify a single GetLocalOrRefresh call.
type Options struct {
	// SkipVersionCheck returns the cached copy immediately without
	// consulting the remote version, for fast initial paint.
	SkipVersionCheck bool
}

// Result is the answer to a read: the local copy (nil when absent) and the
// sync state it should be presented with.
type Result struct {
	Item  *model.CachedItem
	State model.SyncState
}

// Config carries the coordinator tunables.
type Config struct {
	// StuckAfter is the correctness-recovery threshold: an Updating lock
	// older than this is reaped on next access.
	StuckAfter time.Duration

	// DisplayResetAfter is the UX threshold: a status that has displayed
	// Updating longer than this is reported Ready without touching the
	// lock, so the interface does not hang on a merely slow task.
	DisplayResetAfter time.Duration

	// SettleDelay is slept before a background update starts its remote
	// I/O, letting an optimistic UI update settle first. Zero selects the
	// 1 s default; a negative value disables the delay.
	SettleDelay time.Duration

	// DefaultTTL is applied when the remote record carries no expiry.
	DefaultTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.StuckAfter <= 0 {
		c.StuckAfter = 5 * time.Minute
	}
	if c.DisplayResetAfter <= 0 {
		c.DisplayResetAfter = 7 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 30 * 24 * time.Hour
	}
}

// Coordinator owns the per-(item, owner) state machines and the dedup lock
// set. All state transitions happen inside c.mu; the check-and-set on the
// lock map is a single critical section, which is the one hard concurrency
// invariant here.
type Coordinator struct {
	cfg    Config
	store  Store
	oracle Oracle
	pool   Pool
	bus    *notify.Bus
	sink   EntitlementSink // optional
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	status map[string]*model.VersionStatus
	locks  map[lockKey]*lockEntry
}

// New constructs a Coordinator. sink may be nil.
func New(cfg Config, store Store, oracle Oracle, pool Pool, bus *notify.Bus, sink EntitlementSink, log zerolog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		oracle: oracle,
		pool:   pool,
		bus:    bus,
		sink:   sink,
		log:    log,
		now:    time.Now,
		status: make(map[string]*model.VersionStatus),
		locks:  make(map[lockKey]*lockEntry),
	}
}

// WithClock overrides the coordinator's time source. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// PairKey is the scheduling and supervision key for one (owner, item) pair.
func PairKey(ownerID, itemID string) string { return ownerID + "|" + itemID }

// GetLocalOrRefresh returns the local copy immediately and, when the remote
// version or cadence period differs, schedules a background refresh. It never
// blocks on remote I/O when a local copy exists.
func (c *Coordinator) GetLocalOrRefresh(ctx context.Context, itemID, ownerID string, opts Options) (Result, error) {
	key := model.ItemKey(ownerID, itemID)

	item, err := c.store.Get(ctx, key)
	if err != nil {
		// Storage failures degrade to a cache miss on the read path.
		c.log.Warn().Err(err).Str("item", itemID).Str("owner", ownerID).Msg("cache read failed, treating as miss")
		item = nil
	}
	if item == nil {
		return Result{State: model.StateNotPresent}, nil
	}
	_ = c.store.Touch(ctx, key)

	if opts.SkipVersionCheck {
		return Result{Item: item, State: model.StateReady}, nil
	}

	now := c.now()

	// Status gate: pass through Updating/Failed, reaping a stuck lock first.
	if res, done := c.checkStatus(item, itemID, ownerID, now); done {
		return res, nil
	}

	// Cadence rollover forces a full re-download regardless of version.
	replaceForCadence := item.StaleForCadence(model.CadenceKey(now))

	if !replaceForCadence {
		published, perr := c.oracle.PublishedVersion(ctx, itemID)
		if perr != nil {
			// Offline or remote failure with a local fallback: serve stale.
			c.log.Debug().Err(perr).Str("item", itemID).Msg("version check failed, serving cached copy")
			return Result{Item: item, State: model.StateReady}, nil
		}
		c.mu.Lock()
		st := c.statusLocked(itemID, ownerID, item)
		st.LastChecked = now
		current := st.DownloadedVersion == published
		c.mu.Unlock()
		if current {
			return Result{Item: item, State: model.StateReady}, nil
		}
	}

	if started := c.beginUpdate(itemID, ownerID, item, replaceForCadence); !started {
		// Another task already holds the lock; suppress the duplicate.
		return Result{Item: item, State: model.StateUpdating}, nil
	}
	return Result{Item: item, State: model.StateUpdating}, nil
}

// checkStatus inspects the state machine for (item, owner). It returns
// (result, true) when the caller should answer immediately, or (_, false)
// when the freshness check should proceed.
func (c *Coordinator) checkStatus(item *model.CachedItem, itemID, ownerID string, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.statusLocked(itemID, ownerID, item)
	switch st.State {
	case model.StateUpdating:
		lk := lockKey{itemID: itemID, ownerID: ownerID, op: opUpdate}
		if entry, held := c.locks[lk]; held {
			age := now.Sub(entry.acquiredAt)
			if age > c.cfg.StuckAfter {
				c.reapLocked(lk, st, age)
				return Result{}, false // fall through as if Ready
			}
			if age > c.cfg.DisplayResetAfter {
				// Display-only reset: report Ready so the UI stops
				// spinning, but leave lock and status untouched. True
				// state is re-checked on the next access.
				return Result{Item: item, State: model.StateReady}, true
			}
			return Result{Item: item, State: model.StateUpdating}, true
		}
		// Updating without a lock holder: restart or a reaped slot whose
		// task never finished. Reset and re-evaluate.
		st.State = model.StateReady
		return Result{}, false

	case model.StateFailed:
		return Result{Item: item, State: model.StateFailed}, true
	}
	return Result{}, false
}

// statusLocked returns the status record for (item, owner), creating it from
// the cached copy on first sight. Caller holds c.mu.
func (c *Coordinator) statusLocked(itemID, ownerID string, item *model.CachedItem) *model.VersionStatus {
	key := PairKey(ownerID, itemID)
	st, ok := c.status[key]
	if !ok {
		st = &model.VersionStatus{State: model.StateReady}
		if item != nil {
			st.DownloadedVersion = item.LocalVersion
		}
		c.status[key] = st
	}
	return st
}

// Retry clears a Failed status so the next access re-enters the version
// check. Calling it in any other state is a no-op.
func (c *Coordinator) Retry(ctx context.Context, itemID, ownerID string) (Result, error) {
	c.mu.Lock()
	st, ok := c.status[PairKey(ownerID, itemID)]
	if ok && st.State == model.StateFailed {
		st.State = model.StateReady
	}
	c.mu.Unlock()
	return c.GetLocalOrRefresh(ctx, itemID, ownerID, Options{})
}

// Forget drops all in-memory state for an owner. Used by ClearAll.
func (c *Coordinator) Forget(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.status {
		if ownerOf(k) == ownerID {
			delete(c.status, k)
		}
	}
	for lk := range c.locks {
		if lk.ownerID == ownerID {
			delete(c.locks, lk)
		}
	}
}

func ownerOf(pair string) string {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '|' {
			return pair[:i]
		}
	}
	return pair
}

// Status reports the current sync state for (item, owner). Items never seen
// by this process report NotPresent.
func (c *Coordinator) Status(itemID, ownerID string) model.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.status[PairKey(ownerID, itemID)]
	if !ok {
		return model.StateNotPresent
	}
	return st.State
}
