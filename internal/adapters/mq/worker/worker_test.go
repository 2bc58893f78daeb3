package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tinymerit/internal/adapters/mq/queue"
	"github.com/okian/tinymerit/internal/adapters/mq/worker"
	"github.com/okian/tinymerit/internal/domain/model"
	logging "github.com/okian/tinymerit/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 200)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	close(mq.jobs)
	return nil
}

type mockResolver struct {
	mu     sync.Mutex
	errors map[int64]error
	calls  int
}

func newMockResolver() *mockResolver {
	return &mockResolver{errors: make(map[int64]error)}
}

func (m *mockResolver) UserByID(_ context.Context, id int64) (model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errors[id]; err != nil {
		return model.UserProfile{}, err
	}
	return model.UserProfile{ID: id, Login: fmt.Sprintf("user%d", id), AvatarURL: "https://avatars/u"}, nil
}

func (m *mockResolver) RepoByID(_ context.Context, id int64) (model.RepoProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errors[id]; err != nil {
		return model.RepoProfile{}, err
	}
	return model.RepoProfile{ID: id, FullName: fmt.Sprintf("org/repo%d", id)}, nil
}

func (m *mockResolver) setError(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[id] = err
}

func (m *mockResolver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// collector gathers job results.
type collector struct {
	results chan queue.Result
}

func newCollector() *collector { return &collector{results: make(chan queue.Result, 200)} }

func (c *collector) job(id string, rec model.PaymentRecord) queue.Job {
	return queue.Job{ID: id, Record: rec, Done: func(r queue.Result) { c.results <- r }}
}

func (c *collector) next() (queue.Result, bool) {
	select {
	case r := <-c.results:
		return r, true
	case <-time.After(time.Second):
		return queue.Result{}, false
	}
}

func userRec(id string) model.PaymentRecord {
	return model.PaymentRecord{Type: model.PaymentUser, RecipientID: model.FlexString(id)}
}

func repoRec(id string) model.PaymentRecord {
	return model.PaymentRecord{Type: model.PaymentRepo, RepoID: model.FlexString(id)}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		resolver := newMockResolver()
		results := newCollector()

		w := worker.NewInMemoryWorker(q, resolver, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a user payment is queued", func() {
			q.jobs <- results.job("row-1", userRec("42"))
			res, ok := results.next()

			convey.Convey("Then the user profile is resolved", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(res.JobID, convey.ShouldEqual, "row-1")
				convey.So(res.Err, convey.ShouldBeNil)
				convey.So(res.User.Login, convey.ShouldEqual, "user42")
				convey.So(res.Repo, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a repo fund is queued", func() {
			q.jobs <- results.job("row-2", repoRec("7"))
			res, ok := results.next()

			convey.Convey("Then the repo profile is resolved", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(res.Repo.FullName, convey.ShouldEqual, "org/repo7")
			})
		})

		convey.Convey("When the lookup fails", func() {
			resolver.setError(13, errors.New("failed to fetch user 13: 404"))
			q.jobs <- results.job("row-3", userRec("13"))
			res, ok := results.next()

			convey.Convey("Then the failure is reported on the job", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(res.Err, convey.ShouldNotBeNil)
				convey.So(res.User, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the record has no numeric id", func() {
			q.jobs <- results.job("row-4", userRec("abc"))
			res, ok := results.next()

			convey.Convey("Then the resolver is not called", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(errors.Is(res.Err, worker.ErrBadSubject), convey.ShouldBeTrue)
				convey.So(resolver.callCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the job context is already cancelled", func() {
			jobCtx, jobCancel := context.WithCancel(context.Background())
			jobCancel()
			j := results.job("row-5", userRec("42"))
			j.Ctx = jobCtx
			q.jobs <- j
			res, ok := results.next()

			convey.Convey("Then the job is answered with the context error", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(errors.Is(res.Err, context.Canceled), convey.ShouldBeTrue)
				convey.So(resolver.callCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should shutdown gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		convey.Convey("When created with default count", func() {
			pool := worker.NewPool(0, newMockQueue(), newMockResolver())

			convey.Convey("Then it has at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When processing many concurrent jobs", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(200))
			resolver := newMockResolver()
			results := newCollector()
			pool := worker.NewPool(4, q, resolver)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			const jobCount = 100
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producer int) {
					defer wg.Done()
					for j := 0; j < jobCount/5; j++ {
						id := fmt.Sprint(producer*100 + j + 1)
						q.Enqueue(ctx, results.job(id, userRec(id)))
					}
				}(i)
			}
			wg.Wait()

			seen := map[string]bool{}
			for i := 0; i < jobCount; i++ {
				res, ok := results.next()
				if !ok {
					break
				}
				seen[res.JobID] = true
			}

			convey.Convey("Then every job is answered once", func() {
				convey.So(len(seen), convey.ShouldEqual, jobCount)
				convey.So(pool.Processed(), convey.ShouldEqual, jobCount)
			})

			convey.Convey("Then shutdown drains and returns", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a started pool is shut down twice", func() {
			pool := worker.NewPool(2, newMockQueue(), newMockResolver())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			first := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the second call returns without panicking", func() {
				convey.So(first, convey.ShouldBeNil)
				var second error
				convey.So(func() { second = pool.Shutdown(shutdownCtx) }, convey.ShouldNotPanic)
				convey.So(second, convey.ShouldBeNil)
			})
		})
	})
}
