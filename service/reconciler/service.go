// Package reconciler drives the decision engine against the external job
// queue on a fixed cadence, isolating per-job failures so that no single
// job can halt the service.
package reconciler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/viant/trustor/internal/clock"
	"github.com/viant/trustor/model/job"
	"github.com/viant/trustor/service/allowlist"
	"github.com/viant/trustor/service/decision"
	"github.com/viant/trustor/service/messaging"
	"github.com/viant/trustor/service/queue"
	"github.com/viant/trustor/service/trustedcode"
	"github.com/viant/trustor/tracing"
)

// Config represents reconciler configuration.
type Config struct {
	// PollingInterval is how often pending jobs are evaluated.
	PollingInterval time.Duration

	// QueueTimeout bounds every call into the external queue so one slow
	// call cannot stall the next tick indefinitely.
	QueueTimeout time.Duration

	// SummaryEvery is the number of cycles between status summaries;
	// per-tick detail is suppressed in between to bound log volume.
	SummaryEvery int

	// CompletedSweepEvery is the number of cycles between sweeps of
	// completed jobs into the trusted-code history.
	CompletedSweepEvery int
}

// eventPublishTimeout bounds the decision-event publish. Events are best
// effort: when the queue is full and nobody consumes, the event is dropped
// so the loop can proceed to the next job and the next tick.
const eventPublishTimeout = 100 * time.Millisecond

// DefaultConfig returns the reference cadence: 1s polling, summaries every
// 60 cycles, completed sweep every 10 cycles.
func DefaultConfig() Config {
	return Config{
		PollingInterval:     time.Second,
		QueueTimeout:        10 * time.Second,
		SummaryEvery:        60,
		CompletedSweepEvery: 10,
	}
}

// Option customises the reconciler.
type Option func(*Service)

// WithEventQueue attaches a queue on which every approval decision is
// published; a nil queue disables publishing.
func WithEventQueue(events messaging.Queue[decision.Event]) Option {
	return func(s *Service) { s.events = events }
}

// Service is the reconciliation loop.
type Service struct {
	config    Config
	queue     queue.Service
	engine    *decision.Service
	allowlist allowlist.Service
	trusted   trustedcode.Service
	events    messaging.Queue[decision.Event]

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// processed tracks job IDs already swept into history during this
	// process lifetime; RecordHistory stays idempotent regardless.
	processed map[string]bool

	// counters accumulated between summaries
	approved int
	failed   int
	skipped  int
}

// New creates a reconciler over the queue, engine and stores.
func New(queueService queue.Service, engine *decision.Service, allowlistService allowlist.Service, trustedService trustedcode.Service, config Config, options ...Option) *Service {
	ret := &Service{
		config:     config,
		queue:      queueService,
		engine:     engine,
		allowlist:  allowlistService,
		trusted:    trustedService,
		shutdownCh: make(chan struct{}),
		processed:  make(map[string]bool),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Start begins the reconciliation loop and blocks until the context is
// cancelled or Shutdown is called. Cancellation is observed between ticks:
// the in-flight cycle, including any approve call it issued, finishes
// first.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()

	for cycle := 0; ; cycle++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			s.processCycle(ctx, cycle)
		}
	}
}

// Shutdown requests a graceful stop; safe to call multiple times.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// processCycle runs one tick. Every failure inside it is logged and
// contained; the loop always proceeds to the next job and the next tick.
func (s *Service) processCycle(ctx context.Context, cycle int) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.cycle", "INTERNAL")
	defer tracing.EndSpan(span, nil)

	verbose := cycle%s.config.SummaryEvery == 0
	if cycle%s.config.CompletedSweepEvery == 0 {
		s.sweepCompleted(ctx)
	}
	s.autoApprove(ctx, verbose)
	if verbose {
		s.logSummary(ctx)
	}
}

// sweepCompleted pulls completed jobs from the queue into the trusted-code
// history so they become eligible for marking.
func (s *Service) sweepCompleted(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.QueueTimeout)
	completed, err := s.queue.ListCompleted(callCtx)
	cancel()
	if err != nil {
		log.Printf("reconciler: listing completed jobs failed, retrying next sweep: %v", err)
		return
	}
	stored := 0
	for _, j := range completed {
		if j == nil || j.ID == "" || s.processed[j.ID] {
			continue
		}
		record := job.NewRecord(j, clock.Now())
		if err := s.trusted.RecordHistory(ctx, record); err != nil {
			log.Printf("reconciler: storing job %s in history failed: %v", j.ID, err)
			continue
		}
		s.processed[j.ID] = true
		stored++
	}
	if stored > 0 {
		log.Printf("reconciler: stored %d new completed job(s) in history", stored)
	}
}

// autoApprove evaluates every pending job and approves the ones matching
// either trust criterion.
func (s *Service) autoApprove(ctx context.Context, verbose bool) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.QueueTimeout)
	pending, err := s.queue.ListPending(callCtx)
	cancel()
	if err != nil {
		log.Printf("reconciler: listing pending jobs failed, retrying next tick: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if verbose {
		log.Printf("reconciler: %d job(s) pending approval", len(pending))
	}
	for _, j := range pending {
		s.evaluate(ctx, j, verbose)
	}
}

// evaluate decides one job and, on a positive verdict, approves it on the
// queue and publishes the decision event.
func (s *Service) evaluate(ctx context.Context, j *job.Job, verbose bool) {
	d, err := s.engine.Decide(ctx, j)
	if err != nil {
		s.skipped++
		if errors.Is(err, decision.ErrMalformedJob) {
			log.Printf("reconciler: skipping malformed job %+v", j)
		} else {
			log.Printf("reconciler: skipping job after store error: %v", err)
		}
		return
	}
	if d.Verdict != decision.Approved {
		if verbose {
			log.Printf("reconciler: job %q from %s not in allowlist or trusted code", d.JobName, d.Sender)
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.QueueTimeout)
	err = s.queue.Approve(callCtx, d.JobID, d.ApprovalReason())
	cancel()
	if err != nil {
		s.failed++
		log.Printf("reconciler: approving job %q (%s) failed: %v", d.JobName, d.JobID, err)
		return
	}
	s.approved++
	log.Printf("reconciler: approved %q from %s (%s)", d.JobName, d.Sender, d.Reason)
	if s.events != nil {
		s.publishEvent(ctx, d)
	}
}

// publishEvent offers the decision to the event queue within a short
// deadline and drops it on timeout, so a full queue cannot stall the loop.
func (s *Service) publishEvent(ctx context.Context, d *decision.Decision) {
	pubCtx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()
	if err := s.events.Publish(pubCtx, &decision.Event{Topic: decision.TopicApproved, Decision: d}); err != nil {
		log.Printf("reconciler: dropping decision event for job %s: %v", d.JobID, err)
	}
}

// logSummary emits the slow-cadence status line and resets the counters.
func (s *Service) logSummary(ctx context.Context) {
	senders, err := s.allowlist.ListAll(ctx)
	if err != nil {
		log.Printf("reconciler: summary allowlist read failed: %v", err)
	}
	trusted, err := s.trusted.ListTrusted(ctx)
	if err != nil {
		log.Printf("reconciler: summary trusted read failed: %v", err)
	}
	history, err := s.trusted.ListHistory(ctx)
	if err != nil {
		log.Printf("reconciler: summary history read failed: %v", err)
	}
	log.Printf("reconciler: summary approved=%d failed=%d skipped=%d allowlist=%d trusted=%d history=%d",
		s.approved, s.failed, s.skipped, len(senders), len(trusted), len(history))
	s.approved, s.failed, s.skipped = 0, 0, 0
}
