package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	logger := zerolog.Nop()
	return New(&logger)
}

func TestEveryRunsRepeatedly(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var runs int64
	s.Every("tick", 10*time.Millisecond, false, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})

	time.Sleep(100 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(3))
}

func TestEveryImmediateFiresAtOnce(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.Every("now", time.Hour, true, func(ctx context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate run did not happen")
	}
}

func TestEveryWaitsFullIntervalAfterSlowRun(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var starts []time.Time

	interval := 60 * time.Millisecond
	jobTime := 100 * time.Millisecond
	s.Every("slow", interval, true, func(ctx context.Context) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(jobTime)
	})

	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(starts), 2)
	// A run longer than the interval still gets the full pause after
	// it finishes, so starts are spaced by job time plus interval.
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), jobTime+interval)
	}
}

func TestReplaceCancelsPreviousTask(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var old, fresh int64
	s.Every("job", 10*time.Millisecond, false, func(ctx context.Context) {
		atomic.AddInt64(&old, 1)
	})
	time.Sleep(35 * time.Millisecond)

	s.Every("job", 10*time.Millisecond, false, func(ctx context.Context) {
		atomic.AddInt64(&fresh, 1)
	})
	oldCount := atomic.LoadInt64(&old)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, oldCount, atomic.LoadInt64(&old), "replaced task must stop running")
	assert.Greater(t, atomic.LoadInt64(&fresh), int64(0))
}

func TestRemoveStopsTask(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var runs int64
	s.Every("job", 10*time.Millisecond, false, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})
	time.Sleep(35 * time.Millisecond)
	s.Remove("job")

	count := atomic.LoadInt64(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, atomic.LoadInt64(&runs))
}

func TestStopRejectsNewTasks(t *testing.T) {
	s := newTestScheduler()
	s.Stop()

	var runs int64
	s.Every("late", time.Millisecond, true, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&runs))
}

func TestNextDailyUTC(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		hour   int
		minute int
		want   time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			hour: 12, minute: 30,
			want: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name: "already passed rolls to tomorrow",
			now:  time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
			hour: 12, minute: 30,
			want: time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at fire time rolls to tomorrow",
			now:  time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
			hour: 12, minute: 30,
			want: time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC),
		},
		{
			name: "midnight boundary",
			now:  time.Date(2024, 5, 1, 23, 59, 30, 0, time.UTC),
			hour: 0, minute: 0,
			want: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-utc input normalized",
			now:  time.Date(2024, 5, 1, 17, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)),
			hour: 12, minute: 30,
			want: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDailyUTC(tt.now, tt.hour, tt.minute)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}
}
