package trustor

import (
	"github.com/viant/trustor/service/allowlist"
	"github.com/viant/trustor/service/decision"
	"github.com/viant/trustor/service/messaging"
	"github.com/viant/trustor/service/queue"
	"github.com/viant/trustor/service/trustedcode"
	"github.com/viant/trustor/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithAllowlistService sets the allowlist store.
func WithAllowlistService(service allowlist.Service) Option {
	return func(s *Service) { s.allowlist = service }
}

// WithTrustedCodeService sets the trusted-code store.
func WithTrustedCodeService(service trustedcode.Service) Option {
	return func(s *Service) { s.trusted = service }
}

// WithQueue sets the external job queue the reconciler polls.
func WithQueue(service queue.Service) Option {
	return func(s *Service) { s.queue = service }
}

// WithEventQueue sets the queue on which approval decisions are published.
func WithEventQueue(events messaging.Queue[decision.Event]) Option {
	return func(s *Service) { s.events = events }
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. Safe to call multiple times - the
// first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
