package sheets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// recordingAPI notes the range of every read and tracks how many
// calls overlap, to observe ordering and serialization.
type recordingAPI struct {
	mu     sync.Mutex
	ranges []string

	active  int32
	maxSeen int32
	delay   time.Duration
}

func (r *recordingAPI) enter() {
	cur := atomic.AddInt32(&r.active, 1)
	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, cur) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
}

func (r *recordingAPI) leave() {
	atomic.AddInt32(&r.active, -1)
}

func (r *recordingAPI) Spreadsheet(ctx context.Context, spreadsheetID string) (*sheetsapi.Spreadsheet, error) {
	r.enter()
	defer r.leave()
	return &sheetsapi.Spreadsheet{}, nil
}

func (r *recordingAPI) ValuesGet(ctx context.Context, spreadsheetID, readRange string) (*sheetsapi.ValueRange, error) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.ranges = append(r.ranges, readRange)
	r.mu.Unlock()
	return &sheetsapi.ValueRange{}, nil
}

func (r *recordingAPI) ValuesUpdate(ctx context.Context, spreadsheetID, writeRange string, vr *sheetsapi.ValueRange) error {
	r.enter()
	defer r.leave()
	return nil
}

func (r *recordingAPI) BatchUpdate(ctx context.Context, spreadsheetID string, req *sheetsapi.BatchUpdateSpreadsheetRequest) error {
	r.enter()
	defer r.leave()
	return nil
}

func fastQueue(ctx context.Context, api API) *Queue {
	logger := zerolog.Nop()
	q := NewQueue(ctx, NewExecutor(api, ExecutorConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  2,
		BaseDelay:   time.Millisecond,
	}, &logger), &logger)
	q.idleTimeout = 50 * time.Millisecond
	return q
}

func TestQueueExecutesInOrder(t *testing.T) {
	ctx := context.Background()
	api := &recordingAPI{}
	q := fastQueue(ctx, api)

	futures := make([]*Future, 0, 5)
	want := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		readRange := fmt.Sprintf("Daily-Report!A%d:J%d", i+2, i+2)
		want = append(want, readRange)
		f, err := q.Submit(ctx, NewValuesGet("ss1", readRange))
		require.NoError(t, err)
		futures = append(futures, f)
	}

	for _, f := range futures {
		_, err := f.Wait(ctx)
		require.NoError(t, err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, want, api.ranges)
}

func TestQueueNeverRunsOperationsConcurrently(t *testing.T) {
	ctx := context.Background()
	api := &recordingAPI{delay: 2 * time.Millisecond}
	q := fastQueue(ctx, api)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := q.Do(ctx, NewValuesGet("ss1", "Daily-Report!A:J"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.maxSeen), "at most one call may be in flight")
}

func TestQueuePropagatesOperationError(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("boom")
	api := &scriptedAPI{errs: []error{cause, cause, cause}}
	q := fastQueue(ctx, api)

	_, err := q.Do(ctx, NewValuesGet("ss1", "Daily-Report!A:J"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestQueueRestartsAfterIdle(t *testing.T) {
	ctx := context.Background()
	api := &recordingAPI{}
	q := fastQueue(ctx, api)

	_, err := q.Do(ctx, NewValuesGet("ss1", "Daily-Report!A:J"))
	require.NoError(t, err)

	// Let the worker park itself, then submit again.
	time.Sleep(150 * time.Millisecond)

	_, err = q.Do(ctx, NewValuesGet("ss1", "Daily-Report!A:J"))
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Len(t, api.ranges, 2)
}

func TestQueueRunsSubmissionsRacingIdlePark(t *testing.T) {
	ctx := context.Background()
	q := fastQueue(ctx, &recordingAPI{})
	q.idleTimeout = time.Millisecond

	// Land submissions around the park decision again and again;
	// every future must still resolve.
	for i := 0; i < 100; i++ {
		time.Sleep(time.Millisecond)

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := q.Do(waitCtx, NewValuesGet("ss1", "Daily-Report!A:J"))
		cancel()
		require.NoError(t, err, "submission %d never ran", i)
	}
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	baseCtx, cancel := context.WithCancel(context.Background())
	q := fastQueue(baseCtx, &recordingAPI{})

	// Start the worker, then cancel its context.
	_, err := q.Do(context.Background(), NewValuesGet("ss1", "Daily-Report!A:J"))
	require.NoError(t, err)

	cancel()
	time.Sleep(20 * time.Millisecond)

	f, err := q.Submit(context.Background(), NewValuesGet("ss1", "Daily-Report!A:J"))
	if err == nil {
		// The op may have been buffered before the worker noticed
		// shutdown; its future must still resolve with the error.
		waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
		defer waitCancel()
		_, err = f.Wait(waitCtx)
		assert.Error(t, err)
	}
}
