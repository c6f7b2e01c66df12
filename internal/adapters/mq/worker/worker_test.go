package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/songsort/internal/adapters/mq/queue"
	"github.com/okian/songsort/internal/adapters/mq/worker"
	"github.com/okian/songsort/internal/domain/journal"
	"github.com/okian/songsort/internal/domain/model"
	logging "github.com/okian/songsort/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type mockQueue struct {
	events chan queue.Event
}

func newMockQueue() *mockQueue {
	return &mockQueue{events: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Event { return mq.events }

func (mq *mockQueue) Close() error {
	close(mq.events)
	return nil
}

type flakyAppender struct {
	mu   sync.Mutex
	fail map[string]error
	got  []string
}

func (f *flakyAppender) Append(_ context.Context, m model.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[m.ID]; ok {
		return err
	}
	f.got = append(f.got, m.ID)
	return nil
}

func (f *flakyAppender) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		app := &flakyAppender{fail: map[string]error{"bad": errors.New("disk full")}}
		w := worker.NewInMemoryWorker(q, app, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When matches arrive", func() {
			q.events <- model.Match{ID: "m1", OwnerID: "alice", CollectionID: "c1", At: time.Now()}
			q.events <- model.Match{ID: "bad", OwnerID: "alice", CollectionID: "c1"}
			q.events <- model.Match{ID: "m2", OwnerID: "alice", CollectionID: "c1"}

			convey.Convey("Then good ones are appended and failures are skipped", func() {
				convey.So(eventually(func() bool { return len(app.ids()) == 2 }), convey.ShouldBeTrue)
				convey.So(app.ids(), convey.ShouldResemble, []string{"m1", "m2"})
			})
		})

		convey.Convey("When shut down", func() {
			sctx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()

			convey.Convey("Then it returns promptly and twice is harmless", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose queue closes", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, &flakyAppender{})
		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()
		_ = q.Close()

		convey.Convey("Then Run returns", func() {
			returned := false
			select {
			case <-done:
				returned = true
			case <-time.After(time.Second):
			}
			convey.So(returned, convey.ShouldBeTrue)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue and journal", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		j := journal.New()
		p := worker.NewPool(3, q, j)
		convey.So(p.Size(), convey.ShouldEqual, 3)

		ctx, cancel := context.WithCancel(context.Background())
		served := make(chan error, 1)
		go func() { served <- p.Serve(ctx) }()

		convey.Convey("When matches are published and the pool stops", func() {
			for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
				convey.So(q.Enqueue(ctx, model.Match{ID: id, OwnerID: "alice", CollectionID: "c1"}), convey.ShouldBeNil)
			}
			convey.So(eventually(func() bool { return j.Len() == 5 }), convey.ShouldBeTrue)
			cancel()

			convey.Convey("Then Serve returns the context error and the queue is closed", func() {
				convey.So(<-served, convey.ShouldEqual, context.Canceled)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(j.Recent("alice", "c1", 0), convey.ShouldHaveLength, 5)
			})
		})

		convey.Reset(cancel)
	})

	convey.Convey("Given a pool with a non-positive size", t, func() {
		p := worker.NewPool(0, newMockQueue(), journal.New())

		convey.Convey("Then the default size is used", func() {
			convey.So(p.Size(), convey.ShouldEqual, 2)
		})
	})
}
