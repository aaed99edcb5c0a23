// Package worker provides a supervised sharded job pool that guarantees FIFO
// order per key while allowing parallelism across shards. The pool tracks
// which keys currently have a job executing, so a watchdog can distinguish
// "task still running" from "task silently died".
//
// Contract: callers must not invoke Submit concurrently for the same key;
// FIFO ordering relies on that external serialisation.
package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// Pool executes Jobs on worker goroutines partitioned by a stable hash of the
// key (e.g. "owner|item"). FIFO ordering is preserved within a shard; jobs
// with different keys may run in parallel.
type Pool struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queuedJob // len == cfg.Shards

	done      chan struct{} // closed in Stop()
	closeOnce sync.Once

	mu       sync.Mutex
	inFlight map[string]time.Time // key -> run start, single entry per key

	wg sync.WaitGroup
}

// NewPool constructs the pool and starts its shard workers.
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 20 * time.Second
	}

	p := &Pool{
		cfg:      cfg,
		log:      log,
		queues:   make([]chan queuedJob, cfg.Shards),
		done:     make(chan struct{}),
		inFlight: make(map[string]time.Time),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job for the shard derived from key.
//
//   - Returns nil on success.
//   - Returns ErrPoolClosed if the pool is stopped.
//   - Returns ErrQueueFull (wrapped in *QueueFullError) if the shard is still
//     full after EnqueueTimeout.
//   - Returns ctx.Err() if the caller-provided context is cancelled first.
func (p *Pool) Submit(ctx context.Context, key string, job Job) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	qj := queuedJob{ctx: ctx, key: key, job: job}
	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- qj:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil

	case <-p.done: // Stop() may be called while waiting for space
		return ErrPoolClosed

	case <-ctx.Done():
		return ctx.Err()

	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier enqueues a no-op job on the shard for key and waits until it runs,
// ensuring all previously submitted jobs for that key have completed.
func (p *Pool) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	j := JobFunc(func(context.Context) error {
		close(done)
		return nil
	})
	if err := p.Submit(ctx, key, j); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Running reports whether a job for key is currently executing, and since
// when. Queued-but-not-started jobs do not count.
func (p *Pool) Running(key string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.inFlight[key]
	return t, ok
}

// Stop signals every worker to finish draining its queue, waits for them to
// terminate, and returns. Idempotent and safe for concurrent use.
func (p *Pool) Stop() {
	p.closeOnce.Do(func() {
		p.log.Debug().Int("shards", p.cfg.Shards).Msg("worker pool stopping, draining shards")
		close(p.done)
		p.wg.Wait()
		p.log.Debug().Msg("worker pool stopped, all queues drained")
	})
}

// Close lets Pool satisfy io.Closer.
func (p *Pool) Close() error {
	p.Stop()
	return nil
}

// ------------------------- internals -------------------------

func (p *Pool) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()

	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			p.runOne(label, qj)
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			// Drain remaining jobs, preserving FIFO, then exit.
			for {
				select {
				case qj := <-ch:
					p.runOne(label, qj)
				default:
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// runOne executes a single job with attempt/backoff handling and reports the
// final result through cfg.OnResult.
func (p *Pool) runOne(label string, qj queuedJob) {
	if qj.job == nil {
		return
	}

	// Honour caller context so a cancelled job doesn't stall the shard.
	select {
	case <-qj.ctx.Done():
		p.report(qj.key, qj.ctx.Err())
		return
	default:
	}

	p.mu.Lock()
	p.inFlight[qj.key] = time.Now()
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, qj.key)
		p.mu.Unlock()
	}()

	// Protect the shard from a panicking job.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("key", qj.key).Msg("worker job panic")
			p.report(qj.key, errors.New("job panic"))
		}
	}()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.Reset()

	attempts := 0
	for {
		start := time.Now()
		err := qj.job.Run(qj.ctx)
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

		if err == nil {
			p.report(qj.key, nil)
			return
		}

		// Jobs mark terminal failures with backoff.Permanent; those and
		// exhausted attempts end the job.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			p.report(qj.key, perm.Unwrap())
			return
		}
		attempts++
		if attempts >= p.cfg.MaxAttempts {
			p.report(qj.key, err)
			return
		}

		select {
		case <-time.After(exp.NextBackOff()):
		case <-p.done:
			p.report(qj.key, err)
			return
		case <-qj.ctx.Done():
			p.report(qj.key, qj.ctx.Err())
			return
		}
	}
}

// report invokes the OnResult hook, guarding against panics in the
// user-supplied callback.
func (p *Pool) report(key string, err error) {
	if p.cfg.OnResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("worker result handler panic")
		}
	}()
	p.cfg.OnResult(key, err)
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a() // fast and sufficient at our scale
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % p.cfg.Shards
}
