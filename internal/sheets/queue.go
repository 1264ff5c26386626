package sheets

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultIdleTimeout = 30 * time.Second

// Queue serializes operations through a single worker so order of
// submission is the order of execution. The worker starts lazily on
// the first Submit and parks itself again after an idle period.
type Queue struct {
	executor *Executor
	logger   zerolog.Logger

	mu      sync.Mutex
	ops     chan queued
	running bool

	idleTimeout time.Duration
	baseCtx     context.Context
}

type queued struct {
	op     Operation
	future *Future
}

// NewQueue builds an idle queue bound to baseCtx; when baseCtx is
// cancelled the worker drains nothing further and exits.
func NewQueue(baseCtx context.Context, executor *Executor, logger *zerolog.Logger) *Queue {
	return &Queue{
		executor:    executor,
		logger:      logger.With().Str("component", "sheets_queue").Logger(),
		ops:         make(chan queued, 64),
		idleTimeout: defaultIdleTimeout,
		baseCtx:     baseCtx,
	}
}

// Submit enqueues op and returns a Future for its result. The worker
// is started on demand.
func (q *Queue) Submit(ctx context.Context, op Operation) (*Future, error) {
	f := newFuture()

	q.ensureWorker()

	select {
	case q.ops <- queued{op: op, future: f}:
		// The worker may have parked between the check above and the
		// send landing; a second check guarantees someone picks this
		// item up. Either the park saw a non-empty channel and stayed,
		// or running is false here and a fresh worker starts.
		q.ensureWorker()
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.baseCtx.Done():
		return nil, q.baseCtx.Err()
	}
}

// Do submits op and waits for its result.
func (q *Queue) Do(ctx context.Context, op Operation) (interface{}, error) {
	f, err := q.Submit(ctx, op)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

func (q *Queue) ensureWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	go q.work()
}

func (q *Queue) work() {
	q.logger.Debug().Msg("worker started")
	idle := time.NewTimer(q.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item := <-q.ops:
			result, err := q.executor.Execute(q.baseCtx, item.op)
			if err != nil {
				q.logger.Error().Str("op_id", item.op.ID).Str("op", item.op.Name).Err(err).Msg("operation failed")
			}
			item.future.resolve(result, err)

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(q.idleTimeout)

		case <-idle.C:
			q.mu.Lock()
			// A submit may have raced the timer; only park when the
			// channel is really empty.
			if len(q.ops) == 0 {
				q.running = false
				q.mu.Unlock()
				q.logger.Debug().Msg("worker idle, stopping")
				return
			}
			q.mu.Unlock()
			idle.Reset(q.idleTimeout)

		case <-q.baseCtx.Done():
			q.logger.Debug().Msg("worker stopped")
			q.drain()
			return
		}
	}
}

// drain rejects everything still queued so no caller blocks forever.
func (q *Queue) drain() {
	for {
		select {
		case item := <-q.ops:
			item.future.resolve(nil, q.baseCtx.Err())
		default:
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
			return
		}
	}
}
