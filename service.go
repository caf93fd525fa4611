package trustor

import (
	"context"
	"fmt"
	"log"
	"path"

	"github.com/viant/trustor/service/allowlist"
	alfs "github.com/viant/trustor/service/allowlist/fs"
	amemory "github.com/viant/trustor/service/allowlist/memory"
	"github.com/viant/trustor/service/decision"
	"github.com/viant/trustor/service/facade"
	"github.com/viant/trustor/service/messaging"
	mmemory "github.com/viant/trustor/service/messaging/memory"
	"github.com/viant/trustor/service/queue"
	qmemory "github.com/viant/trustor/service/queue/memory"
	"github.com/viant/trustor/service/reconciler"
	"github.com/viant/trustor/service/trustedcode"
	tfs "github.com/viant/trustor/service/trustedcode/fs"
	tmemory "github.com/viant/trustor/service/trustedcode/memory"
)

// Service wires the trust stores, decision engine, reconciliation loop and
// management facade into one engine.
type Service struct {
	config    *Config
	allowlist allowlist.Service
	trusted   trustedcode.Service
	queue     queue.Service
	events    messaging.Queue[decision.Event]
	engine    *decision.Service
	facade    *facade.Service
	runtime   *Runtime
}

// New creates the engine. Stores default to filesystem implementations
// under Config.BaseURL, or to in-memory ones when no BaseURL is set; the
// queue defaults to the in-memory implementation.
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if err := ret.ensureBaseSetup(); err != nil {
		return nil, err
	}
	ret.engine = decision.New(ret.allowlist, ret.trusted)
	ret.facade = facade.New(ret.allowlist, ret.trusted)
	ret.runtime = newRuntime(reconciler.New(ret.queue, ret.engine, ret.allowlist, ret.trusted,
		ret.config.reconcilerConfig(), reconciler.WithEventQueue(ret.events)))
	return ret, nil
}

func (s *Service) ensureBaseSetup() error {
	if s.allowlist == nil {
		if s.config.BaseURL == "" {
			s.allowlist = amemory.New()
		} else {
			store, err := alfs.New(path.Join(s.config.BaseURL, "allowlist"))
			if err != nil {
				return fmt.Errorf("failed to initialize allowlist store: %w", err)
			}
			s.allowlist = store
		}
	}
	if s.trusted == nil {
		if s.config.BaseURL == "" {
			s.trusted = tmemory.New()
		} else {
			store, err := tfs.New(path.Join(s.config.BaseURL, "trustedcode"))
			if err != nil {
				return fmt.Errorf("failed to initialize trusted-code store: %w", err)
			}
			s.trusted = store
		}
	}
	if s.queue == nil {
		s.queue = qmemory.New()
	}
	if s.events == nil {
		s.events = mmemory.NewQueue[decision.Event](mmemory.DefaultConfig())
	}
	return nil
}

// Start seeds the allowlist when empty and launches the reconciliation
// loop. Only a failed store initialisation here is fatal; everything after
// startup is isolated per job and per tick.
func (s *Service) Start(ctx context.Context) error {
	if err := s.seedBootstrap(ctx); err != nil {
		return fmt.Errorf("failed to seed allowlist: %w", err)
	}
	s.runtime.start(ctx)
	return nil
}

// Shutdown stops the reconciliation loop, letting the in-flight tick
// finish within the grace period.
func (s *Service) Shutdown() {
	s.runtime.Shutdown()
}

// seedBootstrap ensures the engine never starts with an empty trust
// anchor: configured bootstrap senders, or the administrator identity, are
// added when the allowlist is empty.
func (s *Service) seedBootstrap(ctx context.Context) error {
	senders, err := s.allowlist.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(senders) > 0 {
		return nil
	}
	bootstrap := s.config.Bootstrap
	if len(bootstrap) == 0 {
		bootstrap = []string{s.config.Administrator}
	}
	for _, sender := range bootstrap {
		if err := s.allowlist.Add(ctx, sender); err != nil {
			return err
		}
		log.Printf("trustor: seeded bootstrap trusted sender %s", allowlist.Normalize(sender))
	}
	return nil
}

// Facade returns the management surface the external API calls into.
func (s *Service) Facade() *facade.Service { return s.facade }

// Engine returns the decision engine.
func (s *Service) Engine() *decision.Service { return s.engine }

// Queue returns the job queue the reconciler polls.
func (s *Service) Queue() queue.Service { return s.queue }

// Events returns the queue carrying approval decision events.
func (s *Service) Events() messaging.Queue[decision.Event] { return s.events }

// Allowlist returns the allowlist store.
func (s *Service) Allowlist() allowlist.Service { return s.allowlist }

// TrustedCode returns the trusted-code store.
func (s *Service) TrustedCode() trustedcode.Service { return s.trusted }

// Runtime returns the runtime handle.
func (s *Service) Runtime() *Runtime { return s.runtime }

// Administrator returns the caller holding the administrative capability.
func (s *Service) Administrator() facade.Caller {
	return facade.Caller{Identity: s.config.Administrator, Admin: true}
}
