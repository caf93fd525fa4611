package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/trustor/model/job"
	amemory "github.com/viant/trustor/service/allowlist/memory"
	"github.com/viant/trustor/service/decision"
	mmemory "github.com/viant/trustor/service/messaging/memory"
	"github.com/viant/trustor/service/queue"
	qmemory "github.com/viant/trustor/service/queue/memory"
	"github.com/viant/trustor/service/signature"
	tmemory "github.com/viant/trustor/service/trustedcode/memory"
)

func testConfig() Config {
	return Config{
		PollingInterval:     2 * time.Millisecond,
		QueueTimeout:        time.Second,
		SummaryEvery:        1000,
		CompletedSweepEvery: 1,
	}
}

type fixture struct {
	allowlist *amemory.Service
	trusted   *tmemory.Service
	queue     *qmemory.Service
	events    *mmemory.Queue[decision.Event]
	service   *Service
	stop      func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		allowlist: amemory.New(),
		trusted:   tmemory.New(),
		queue:     qmemory.New(),
		events:    mmemory.NewQueue[decision.Event](mmemory.DefaultConfig()),
	}
	engine := decision.New(f.allowlist, f.trusted)
	f.service = New(f.queue, engine, f.allowlist, f.trusted, testConfig(), WithEventQueue(f.events))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.service.Start(context.Background())
	}()
	f.stop = func() {
		f.service.Shutdown()
		<-done
	}
	t.Cleanup(f.stop)
	return f
}

func waitForStatus(t *testing.T, q *qmemory.Service, id string, expected job.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, err := q.Status(id)
		return err == nil && status == expected
	}, time.Second, 2*time.Millisecond, "job %s never reached %s", id, expected)
}

func TestApprovesAllowlistedSender(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.allowlist.Add(context.Background(), "a@x.org"))

	id := f.queue.Submit(&job.Job{Name: "anything", Sender: "a@x.org", Files: job.Files{"x.py": "whatever"}})
	waitForStatus(t, f.queue, id, job.StatusApproved)

	// the decision event is published
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := f.events.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, decision.TopicApproved, msg.T().Topic)
	assert.Equal(t, decision.ReasonAllowlist, msg.T().Decision.Reason)
	assert.NoError(t, msg.Ack())
}

func TestTrustedCodeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// J1 completes and is swept into history
	j1 := &job.Job{Name: "Report", Tags: []string{"x", "a"}, Files: job.Files{"run.py": "print(1)"}, Sender: "first@x.org"}
	id1 := f.queue.Submit(j1)
	require.NoError(t, f.queue.Approve(ctx, id1, "manual"))
	require.NoError(t, f.queue.Complete(id1))

	require.Eventually(t, func() bool {
		records, err := f.trusted.ListHistory(ctx)
		return err == nil && len(records) == 1
	}, time.Second, 2*time.Millisecond)

	// its signature is marked trusted
	records, err := f.trusted.ListHistory(ctx)
	require.NoError(t, err)
	require.NoError(t, f.trusted.Mark(ctx, records[0].Signature, records[0]))

	// J2: identical material, different tag order and different sender
	id2 := f.queue.Submit(&job.Job{Name: "Report", Tags: []string{"a", "x"}, Files: job.Files{"run.py": "print(1)"}, Sender: "second@y.org"})
	waitForStatus(t, f.queue, id2, job.StatusApproved)
}

func TestUnmatchedJobStaysPending(t *testing.T) {
	f := newFixture(t)
	id := f.queue.Submit(&job.Job{Name: "Unknown", Sender: "stranger@y.org", Files: job.Files{"n.py": "pass"}})

	time.Sleep(30 * time.Millisecond)
	status, err := f.queue.Status(id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, status)
}

func TestMalformedJobIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.allowlist.Add(ctx, "a@x.org"))

	// missing sender: skipped, must not halt the loop
	f.queue.Submit(&job.Job{Name: "broken"})
	id := f.queue.Submit(&job.Job{Name: "fine", Sender: "a@x.org"})
	waitForStatus(t, f.queue, id, job.StatusApproved)
}

func TestApprovalIsNotRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.allowlist.Add(ctx, "a@x.org"))

	id := f.queue.Submit(&job.Job{Name: "one", Sender: "a@x.org"})
	waitForStatus(t, f.queue, id, job.StatusApproved)

	// removing the sender mid-loop does not retroactively un-approve
	require.NoError(t, f.allowlist.Remove(ctx, "a@x.org"))
	time.Sleep(20 * time.Millisecond)
	status, err := f.queue.Status(id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusApproved, status)

	// but new jobs from the removed sender stay pending
	id2 := f.queue.Submit(&job.Job{Name: "two", Sender: "a@x.org"})
	time.Sleep(30 * time.Millisecond)
	status, err = f.queue.Status(id2)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, status)
}

func TestGracefulShutdown(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop within the grace period")
	}
}

// flakyQueue fails every ListPending call a fixed number of times before
// delegating, to prove that queue outages only cost ticks.
type flakyQueue struct {
	queue.Service
	mu       sync.Mutex
	failures int
}

func (q *flakyQueue) ListPending(ctx context.Context) ([]*job.Job, error) {
	q.mu.Lock()
	remaining := q.failures
	if remaining > 0 {
		q.failures--
	}
	q.mu.Unlock()
	if remaining > 0 {
		return nil, errors.New("queue unavailable")
	}
	return q.Service.ListPending(ctx)
}

func TestQueueOutageRetriedNextTick(t *testing.T) {
	allowlistStore := amemory.New()
	trustedStore := tmemory.New()
	inner := qmemory.New()
	flaky := &flakyQueue{Service: inner, failures: 3}
	engine := decision.New(allowlistStore, trustedStore)
	svc := New(flaky, engine, allowlistStore, trustedStore, testConfig())

	ctx := context.Background()
	require.NoError(t, allowlistStore.Add(ctx, "a@x.org"))
	id := inner.Submit(&job.Job{Name: "late", Sender: "a@x.org"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()
	defer func() {
		svc.Shutdown()
		<-done
	}()

	waitForStatus(t, inner, id, job.StatusApproved)
}

func TestFullEventQueueDoesNotStallLoop(t *testing.T) {
	allowlistStore := amemory.New()
	trustedStore := tmemory.New()
	inner := qmemory.New()
	// a single-slot event queue that nobody consumes
	events := mmemory.NewQueue[decision.Event](mmemory.Config{QueueBuffer: 1})
	engine := decision.New(allowlistStore, trustedStore)
	svc := New(inner, engine, allowlistStore, trustedStore, testConfig(), WithEventQueue(events))

	ctx := context.Background()
	require.NoError(t, allowlistStore.Add(ctx, "a@x.org"))
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, inner.Submit(&job.Job{Name: fmt.Sprintf("job-%d", i), Sender: "a@x.org"}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	// every job is approved even though only one event fits the queue
	for _, id := range ids {
		waitForStatus(t, inner, id, job.StatusApproved)
	}

	svc.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop with a full event queue")
	}
}

func TestDecisionSignatureStability(t *testing.T) {
	// guard: history records computed by the sweep match what the engine
	// computes for an identical pending job
	j := &job.Job{ID: "j", Name: "Report", Tags: []string{"b", "a"}, Files: job.Files{"run.py": "print(1)"}, Sender: "s@x.org"}
	record := job.NewRecord(j, time.Now())
	assert.Equal(t, signature.Compute(j.Name, j.Description, j.Tags, j.Files), record.Signature)
}
