package notes

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// writeQueue runs gateway calls as detached fire-and-forget tasks.
//
// Tasks are not serialized. Two saves for the same note can be in flight at
// once and may complete in either order, so the persisted copy can briefly
// trail the freshest edit until the last save lands. The store never reads
// gateway state back, so this cannot corrupt in-memory notes.
type writeQueue struct {
	wg       sync.WaitGroup
	sequence atomic.Uint64
	inFlight atomic.Int64
	logger   *zap.Logger
}

func newWriteQueue(logger *zap.Logger) *writeQueue {
	return &writeQueue{logger: logger}
}

// submit starts run on its own goroutine and returns the task sequence number.
// The task keeps running after ctx is cancelled; failures are logged and dropped.
func (q *writeQueue) submit(ctx context.Context, operation, noteID string, run func(context.Context) error) uint64 {
	sequence := q.sequence.Add(1)
	detached := context.WithoutCancel(ctx)

	q.wg.Add(1)
	q.inFlight.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.inFlight.Add(-1)

		err := q.execute(detached, run)
		if err != nil {
			q.logger.Error("notes persistence error",
				zap.String("operation", operation),
				zap.String("note_id", noteID),
				zap.Uint64("sequence", sequence),
				zap.Error(err))
			return
		}
		q.logger.Debug("notes persistence completed",
			zap.String("operation", operation),
			zap.String("note_id", noteID),
			zap.Uint64("sequence", sequence))
	}()
	return sequence
}

func (q *writeQueue) execute(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("gateway panic: %v", recovered)
		}
	}()
	return run(ctx)
}

// pending returns the number of tasks that have not completed yet.
func (q *writeQueue) pending() int {
	return int(q.inFlight.Load())
}

// wait blocks until all submitted tasks finish or ctx ends.
func (q *writeQueue) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
