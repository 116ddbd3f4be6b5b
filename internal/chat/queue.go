package chat

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avelin/chatter/internal/metrics"
)

// sendQueue executes jobs on worker goroutines partitioned by a stable hash
// of the key (the conversation id). FIFO order is preserved within a shard,
// so replies land in issue order per conversation; sends to different
// conversations may run in parallel.
//
// Contract: callers must not invoke Submit concurrently for the same key;
// FIFO ordering relies on that external serialisation. A failed job is
// terminal, the queue never retries.

var (
	errQueueClosed = errors.New("send queue closed")
	errQueueFull   = errors.New("send queue full")
)

type queuedJob struct {
	ctx context.Context
	run func(context.Context)
}

type queueConfig struct {
	shards         int
	queueSize      int
	enqueueTimeout time.Duration
}

type sendQueue struct {
	cfg    queueConfig
	queues []chan queuedJob

	done   chan struct{}
	closed uint32

	wg sync.WaitGroup
}

func newSendQueue(cfg queueConfig) *sendQueue {
	if cfg.shards <= 0 {
		cfg.shards = 4
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = 64
	}
	if cfg.enqueueTimeout <= 0 {
		cfg.enqueueTimeout = 100 * time.Millisecond
	}

	q := &sendQueue{
		cfg:    cfg,
		queues: make([]chan queuedJob, cfg.shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.shards; i++ {
		ch := make(chan queuedJob, cfg.queueSize)
		q.queues[i] = ch
		q.wg.Add(1)
		go q.runWorker(ch)
	}
	return q
}

// submit enqueues run on the shard derived from key.
func (q *sendQueue) submit(ctx context.Context, key string, run func(context.Context)) error {
	if atomic.LoadUint32(&q.closed) == 1 {
		return errQueueClosed
	}
	select {
	case <-q.done:
		return errQueueClosed
	default:
	}

	shard := q.shardFor(key)
	ch := q.queues[shard]

	timer := time.NewTimer(q.cfg.enqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queuedJob{ctx: ctx, run: run}:
		metrics.QueueSubmissionsTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
		return nil
	case <-q.done:
		return errQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errQueueFull
	}
}

// barrier enqueues a no-op on the shard for key and waits until it runs,
// ensuring every previously submitted job for that key has completed.
func (q *sendQueue) barrier(ctx context.Context, key string) error {
	ran := make(chan struct{})
	if err := q.submit(ctx, key, func(context.Context) { close(ran) }); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ran:
		return nil
	}
}

// stop signals workers to drain their current queues and waits for them.
// Idempotent.
func (q *sendQueue) stop() {
	if !atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		return
	}
	close(q.done)
	q.wg.Wait()
}

func (q *sendQueue) runWorker(ch <-chan queuedJob) {
	defer q.wg.Done()

	for {
		select {
		case qj := <-ch:
			if qj.run == nil {
				continue
			}
			// Honour the caller context so an abandoned send doesn't
			// stall the shard.
			select {
			case <-qj.ctx.Done():
			default:
				qj.run(qj.ctx)
			}
		case <-q.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case qj := <-ch:
					if qj.run == nil {
						continue
					}
					select {
					case <-qj.ctx.Done():
					default:
						qj.run(qj.ctx)
					}
				default:
					return
				}
			}
		}
	}
}

func (q *sendQueue) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(q.cfg.shards))
}
