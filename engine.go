// Package coursesync keeps a per-(item, owner) local copy of purchased
// course content consistent with the authoritative remote version: instant
// offline reads, background refreshes deduplicated per pair, stuck-state
// recovery, and notifications when content becomes ready.
package coursesync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxishq/coursesync/internal/cachestore"
	"github.com/praxishq/coursesync/internal/logger"
	"github.com/praxishq/coursesync/internal/membership"
	"github.com/praxishq/coursesync/internal/model"
	"github.com/praxishq/coursesync/internal/notify"
	"github.com/praxishq/coursesync/internal/remote"
	"github.com/praxishq/coursesync/internal/syncer"
	"github.com/praxishq/coursesync/internal/worker"
)

// Oracle is the remote surface the engine consumes. *remote.Client satisfies
// it; tests inject fakes through WithOracle.
type Oracle interface {
	PublishedVersion(ctx context.Context, itemID string) (string, error)
	Entitlement(ctx context.Context, ownerID, itemID string) (*model.MembershipEntry, error)
	Entitlements(ctx context.Context, ownerID string) ([]model.MembershipEntry, error)
	Content(ctx context.Context, itemID, ownerID string) (*remote.ItemContent, error)
}

// Engine is the public facade over the sync core.
type Engine struct {
	baseURL   string
	apiKey    string
	cachePath string
	http      *http.Client
	log       zerolog.Logger

	store   *cachestore.Store
	oracle  Oracle
	pool    *worker.Pool
	bus     *notify.Bus
	members *membership.Cache
	sync    *syncer.Coordinator

	syncCfg       syncer.Config
	workerCfg     worker.Config
	workerCfgSet  bool
	membershipTTL time.Duration
	reapInterval  time.Duration

	stopReaper context.CancelFunc
	closedOnce uint32 // ensures Close is idempotent
}

// New constructs an Engine. baseURL and apiKey identify the catalog backend;
// cachePath is the SQLite file holding the local cache. Additional knobs are
// provided via functional options.
func New(baseURL, apiKey, cachePath string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		panic("baseURL cannot be empty")
	}
	if apiKey == "" {
		panic("apiKey cannot be empty")
	}

	e := &Engine{
		baseURL:      baseURL,
		apiKey:       apiKey,
		cachePath:    cachePath,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          logger.New("coursesync"),
		reapInterval: time.Minute,
	}

	// Auto-enable debug via env variable without changing code.
	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	// Wrap the transport so every request carries the Authorization header.
	e.wrapTransportWithAPIKey()

	if e.store == nil {
		st, err := cachestore.New(cachePath)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	if e.oracle == nil {
		e.oracle = remote.NewClient(e.http, baseURL)
	}

	e.bus = notify.NewBus(e.log)

	if !e.workerCfgSet {
		cfg, err := worker.LoadConfig()
		if err != nil {
			return nil, err
		}
		e.workerCfg = cfg
	}
	log := e.log
	e.workerCfg.OnResult = func(key string, err error) {
		if err != nil {
			log.Debug().Err(err).Str("key", key).Msg("background job finished with error")
		}
	}
	e.pool = worker.NewPool(e.workerCfg, e.log)

	e.members = membership.New(e.membershipTTL, oracleLister{e.oracle}, e.store, e.bus, e.log)
	e.sync = syncer.New(e.syncCfg, e.store, e.oracle, poolAdapter{e.pool}, e.bus, e.members, e.log)

	// Instrument outcomes without coupling the coordinator to the metrics.
	e.bus.Subscribe(notify.UpdateComplete, func(string) { updatesCompletedTotal.Inc() })
	e.bus.Subscribe(notify.UpdateFailed, func(string) { updatesFailedTotal.Inc() })

	ctx, cancel := context.WithCancel(context.Background())
	e.stopReaper = cancel
	go e.sync.RunReaper(ctx, e.reapInterval)

	return e, nil
}

// wrapTransportWithAPIKey installs the auth transport beneath any debug
// wrapper configured via options.
func (e *Engine) wrapTransportWithAPIKey() {
	base := e.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	e.http.Transport = &apiKeyTransport{base: base, apiKey: e.apiKey}
}

type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(cloned)
}

// Close stops the reaper and the background pool and closes the store. Safe
// to call multiple times.
func (e *Engine) Close() error {
	if !atomic.CompareAndSwapUint32(&e.closedOnce, 0, 1) {
		return nil
	}
	if e.stopReaper != nil {
		e.stopReaper()
	}
	if e.pool != nil {
		e.pool.Stop()
	}
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// --------------------------------------------------------------------
// Content operations
// --------------------------------------------------------------------

// GetLocalOrRefresh returns the cached copy immediately, scheduling a
// background refresh when the remote version or cadence period differs. A
// NotPresent state means the caller must Download explicitly.
func (e *Engine) GetLocalOrRefresh(ctx context.Context, itemID, ownerID string, opts Options) (Result, error) {
	res, err := e.sync.GetLocalOrRefresh(ctx, itemID, ownerID, opts)
	if res.State == model.StateNotPresent {
		cacheMissesTotal.Inc()
	} else {
		cacheHitsTotal.Inc()
	}
	return res, err
}

// Download performs the explicit first fetch for an item with no local copy.
// Synchronous; remote errors are surfaced because there is no fallback.
func (e *Engine) Download(ctx context.Context, itemID, ownerID string) (Result, error) {
	return e.sync.Download(ctx, itemID, ownerID)
}

// Retry clears a Failed status and re-runs the freshness check.
func (e *Engine) Retry(ctx context.Context, itemID, ownerID string) (Result, error) {
	return e.sync.Retry(ctx, itemID, ownerID)
}

// SyncStatus reports the current state machine position for (item, owner).
func (e *Engine) SyncStatus(itemID, ownerID string) SyncState {
	return e.sync.Status(itemID, ownerID)
}

// AwaitIdle blocks until every background job already scheduled for
// (item, owner) has finished. Works by flushing the pair's FIFO queue with a
// no-op job.
func (e *Engine) AwaitIdle(ctx context.Context, itemID, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.pool.Barrier(ctx, syncer.PairKey(ownerID, itemID))
}

// --------------------------------------------------------------------
// Membership operations
// --------------------------------------------------------------------

// ListOwned returns the owner's visible items from the TTL cache, refreshing
// from the backend when stale.
func (e *Engine) ListOwned(ctx context.Context, ownerID string) ([]MembershipEntry, error) {
	return e.members.ListOwned(ctx, ownerID)
}

// RefreshMembership forces a fresh entitlement read and diffs it into the
// baseline. Reports whether anything changed.
func (e *Engine) RefreshMembership(ctx context.Context, ownerID string) (bool, error) {
	fresh, err := e.oracle.Entitlements(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return e.members.Refresh(ctx, ownerID, fresh)
}

// ActiveCount reports how many of the owner's items are currently active;
// expired trials are visible in ListOwned but excluded here.
func (e *Engine) ActiveCount(ctx context.Context, ownerID string) (int, error) {
	return e.members.ActiveCount(ctx, ownerID)
}

// --------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------

// Subscribe registers fn for notifications of the given kind and returns an
// unsubscribe function.
func (e *Engine) Subscribe(kind NotificationKind, fn func(itemID string)) func() {
	return e.bus.Subscribe(kind, fn)
}

// --------------------------------------------------------------------
// Storage management
// --------------------------------------------------------------------

// EvictExpired removes every cached entry past its expiry and returns the
// removed keys.
func (e *Engine) EvictExpired(ctx context.Context) ([]string, error) {
	return e.store.EvictExpired(ctx, time.Now())
}

// ClearAll wipes every cached entry, the membership baseline, and all
// in-memory sync state for one owner. Keys are namespaced, so nothing outside
// the engine's own rows is touched.
func (e *Engine) ClearAll(ctx context.Context, ownerID string) (int64, error) {
	n, err := e.store.DeletePrefix(ctx, model.OwnerPrefix(ownerID))
	if err != nil {
		return n, err
	}
	if derr := e.store.Delete(ctx, model.MembershipKey(ownerID)); derr != nil {
		return n, derr
	}
	e.sync.Forget(ownerID)
	e.members.Invalidate(ownerID)
	return n, nil
}

// StorageReport returns per-key size, expiry and last-access metadata for one
// owner's cached items, for externally built storage-usage reporting.
func (e *Engine) StorageReport(ctx context.Context, ownerID string) (map[string]IndexEntry, error) {
	return e.store.IndexMetadata(ctx, model.OwnerPrefix(ownerID))
}

// --------------------------------------------------------------------
// Wiring adapters
// --------------------------------------------------------------------

// poolAdapter bridges the worker pool to the coordinator's narrow interface.
type poolAdapter struct{ pool *worker.Pool }

func (p poolAdapter) Submit(ctx context.Context, key string, job syncer.Job) error {
	return p.pool.Submit(ctx, key, worker.JobFunc(job.Run))
}

func (p poolAdapter) Running(key string) (time.Time, bool) {
	return p.pool.Running(key)
}

// oracleLister narrows the Oracle for the membership cache.
type oracleLister struct{ o Oracle }

func (l oracleLister) Entitlements(ctx context.Context, ownerID string) ([]model.MembershipEntry, error) {
	return l.o.Entitlements(ctx, ownerID)
}
