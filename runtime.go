package trustor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/trustor/service/reconciler"
)

// shutdownGrace bounds how long Shutdown waits for the in-flight tick.
const shutdownGrace = 5 * time.Second

// Runtime owns the background reconciliation loop.
type Runtime struct {
	reconciler *reconciler.Service
	startOnce  sync.Once
	started    atomic.Bool
	done       chan struct{}
}

func newRuntime(service *reconciler.Service) *Runtime {
	return &Runtime{reconciler: service, done: make(chan struct{})}
}

// Reconciler returns the underlying loop service.
func (r *Runtime) Reconciler() *reconciler.Service { return r.reconciler }

// start launches the loop exactly once.
func (r *Runtime) start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go func() {
			defer close(r.done)
			if err := r.reconciler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Printf("trustor: reconciler stopped: %v", err)
			}
		}()
	})
}

// Shutdown requests a graceful stop and waits for the in-flight tick up to
// the grace period.
func (r *Runtime) Shutdown() {
	r.reconciler.Shutdown()
	if !r.started.Load() {
		return
	}
	select {
	case <-r.done:
	case <-time.After(shutdownGrace):
		log.Printf("trustor: reconciler did not stop within %s", shutdownGrace)
	}
}
