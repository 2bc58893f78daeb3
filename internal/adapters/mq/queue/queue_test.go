package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tinymerit/internal/domain/model"
)

func job(id string) Job {
	return Job{ID: id, Record: model.PaymentRecord{Type: model.PaymentUser, RecipientID: model.FlexString(id)}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("1")) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "1" || got.Record.SubjectID() != "1" {
		t.Errorf("expected job 1, got %+v", got)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, job("2")) {
		t.Error("expected enqueue to succeed")
	}

	if q.Enqueue(ctx, job("3")) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	numProducers := 10
	numJobs := 100

	done := make(chan bool, numProducers)
	for i := 0; i < numProducers; i++ {
		go func(id int) {
			for j := 0; j < numJobs; j++ {
				for !q.Enqueue(ctx, job(fmt.Sprintf("%d_%d", id, j))) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	var consumed atomic.Int64
	for i := 0; i < numProducers; i++ {
		go func() {
			for range q.Dequeue(ctx) {
				consumed.Add(1)
			}
		}()
	}

	for i := 0; i < numProducers; i++ {
		<-done
	}

	deadline := time.Now().Add(2 * time.Second)
	for consumed.Load() < int64(numProducers*numJobs) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := consumed.Load(); got != int64(numProducers*numJobs) {
		t.Errorf("expected %d consumed jobs, got %d", numProducers*numJobs, got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_CancelledConsumerAnswersJob(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	_ = q.Close()

	answered := make(chan Result, 1)
	q.requeue(Job{ID: "x", Done: func(r Result) { answered <- r }})

	select {
	case r := <-answered:
		if r.Err != ErrClosed {
			t.Errorf("expected ErrClosed, got %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected job to be answered")
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, job("2")) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, job("3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Remaining jobs drain, then the channel closes.
	drained := 0
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if drained != 2 {
					t.Errorf("expected 2 drained jobs, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
