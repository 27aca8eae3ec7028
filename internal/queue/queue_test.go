package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

func newTestQueue(t *testing.T, handler Handler, onExhausted ExhaustedFunc) *Queue {
	t.Helper()
	q := New(Options{
		Workers:        2,
		QueueSize:      16,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Handler:        handler,
		OnExhausted:    onExhausted,
		Log:            zerolog.Nop(),
	})
	q.Start()
	return q
}

func TestQueue_CompletesTask(t *testing.T) {
	var calls atomic.Int64
	q := newTestQueue(t, func(context.Context, Task) error {
		calls.Add(1)
		return nil
	}, nil)

	if !q.Enqueue(Task{Kind: KindTranscribe, RecordingID: uuid.New()}) {
		t.Fatal("Enqueue returned false")
	}
	q.Stop()

	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	if s := q.Stats(); s.Completed != 1 || s.Failed != 0 {
		t.Errorf("stats = %+v, want 1 completed, 0 failed", s)
	}
}

func TestQueue_TransportErrorRetriedUpToBound(t *testing.T) {
	var calls atomic.Int64
	var exhausted atomic.Int64
	q := newTestQueue(t, func(context.Context, Task) error {
		calls.Add(1)
		return model.Transportf("provider", errors.New("connection refused"))
	}, func(_ context.Context, _ Task, err error) {
		exhausted.Add(1)
		if !model.IsTransport(err) {
			t.Errorf("exhausted error should be transport-class, got %v", err)
		}
	})

	q.Enqueue(Task{Kind: KindTranscribe, RecordingID: uuid.New()})
	q.Stop()

	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3 (MaxAttempts)", calls.Load())
	}
	if exhausted.Load() != 1 {
		t.Errorf("OnExhausted calls = %d, want 1", exhausted.Load())
	}
}

func TestQueue_TwoTimeoutsThenSuccess(t *testing.T) {
	var calls atomic.Int64
	var exhausted atomic.Int64
	q := newTestQueue(t, func(context.Context, Task) error {
		if calls.Add(1) < 3 {
			return model.Transportf("provider", errors.New("timeout"))
		}
		return nil
	}, func(context.Context, Task, error) {
		exhausted.Add(1)
	})

	q.Enqueue(Task{Kind: KindTranscribe, RecordingID: uuid.New()})
	q.Stop()

	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want exactly 3", calls.Load())
	}
	if exhausted.Load() != 0 {
		t.Error("OnExhausted must not fire when a retry succeeds")
	}
	if s := q.Stats(); s.Completed != 1 || s.Failed != 0 {
		t.Errorf("stats = %+v, want completed=1 failed=0", s)
	}
}

func TestQueue_ContentErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	var exhaustedErr error
	var mu sync.Mutex
	q := newTestQueue(t, func(context.Context, Task) error {
		calls.Add(1)
		return model.Contentf("provider", errors.New("empty audio"))
	}, func(_ context.Context, _ Task, err error) {
		mu.Lock()
		exhaustedErr = err
		mu.Unlock()
	})

	q.Enqueue(Task{Kind: KindTranscribe, RecordingID: uuid.New()})
	q.Stop()

	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1 (content errors consume no retries)", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if !model.IsContent(exhaustedErr) {
		t.Errorf("exhausted error should be content-class, got %v", exhaustedErr)
	}
}

func TestQueue_EnqueueFull(t *testing.T) {
	q := New(Options{
		Workers:   0, // nobody draining
		QueueSize: 2,
		Handler:   func(context.Context, Task) error { return nil },
		Log:       zerolog.Nop(),
	})

	q.Enqueue(Task{RecordingID: uuid.New()})
	q.Enqueue(Task{RecordingID: uuid.New()})
	if q.Enqueue(Task{RecordingID: uuid.New()}) {
		t.Error("Enqueue should return false when the queue is full")
	}
}

func TestQueue_EnqueueAfterStop(t *testing.T) {
	q := newTestQueue(t, func(context.Context, Task) error { return nil }, nil)
	q.Stop()

	if q.Enqueue(Task{RecordingID: uuid.New()}) {
		t.Error("Enqueue should return false after Stop")
	}
}
