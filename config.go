package trustor

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/trustor/service/reconciler"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON or YAML; the zero-value of nested fields
// inherits the package defaults.
type Config struct {
	// BaseURL is the local storage root for the durable stores. When empty
	// the engine runs on in-memory stores.
	BaseURL string `json:"baseURL" yaml:"baseURL"`

	// Administrator is the identity holding the administrative capability
	// on the management facade.
	Administrator string `json:"administrator" yaml:"administrator"`

	// Bootstrap senders are added when the allowlist is empty at startup.
	// When none are configured the administrator identity is seeded so the
	// engine never starts without a trust anchor.
	Bootstrap []string `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`

	Reconciler ReconcilerConfig `json:"reconciler" yaml:"reconciler"`
}

// ReconcilerConfig controls the reconciliation loop cadence.
type ReconcilerConfig struct {
	PollingMs           int `json:"pollingMs" yaml:"pollingMs"`
	QueueTimeoutMs      int `json:"queueTimeoutMs" yaml:"queueTimeoutMs"`
	SummaryEvery        int `json:"summaryEvery" yaml:"summaryEvery"`
	CompletedSweepEvery int `json:"completedSweepEvery" yaml:"completedSweepEvery"`
}

// DefaultConfig returns a Config populated with the reference cadence:
// 1s polling, 10s queue timeout, summaries every 60 cycles, completed
// sweep every 10 cycles.
func DefaultConfig() *Config {
	return &Config{
		Reconciler: ReconcilerConfig{
			PollingMs:           1000,
			QueueTimeoutMs:      10000,
			SummaryEvery:        60,
			CompletedSweepEvery: 10,
		},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Administrator == "" {
		return fmt.Errorf("administrator identity is required")
	}
	if c.Reconciler.PollingMs <= 0 {
		return fmt.Errorf("reconciler.pollingMs must be > 0")
	}
	if c.Reconciler.QueueTimeoutMs <= 0 {
		return fmt.Errorf("reconciler.queueTimeoutMs must be > 0")
	}
	if c.Reconciler.SummaryEvery <= 0 {
		return fmt.Errorf("reconciler.summaryEvery must be > 0")
	}
	if c.Reconciler.CompletedSweepEvery <= 0 {
		return fmt.Errorf("reconciler.completedSweepEvery must be > 0")
	}
	return nil
}

// reconcilerConfig converts the serialisable cadence into the reconciler's
// runtime configuration.
func (c *Config) reconcilerConfig() reconciler.Config {
	return reconciler.Config{
		PollingInterval:     time.Duration(c.Reconciler.PollingMs) * time.Millisecond,
		QueueTimeout:        time.Duration(c.Reconciler.QueueTimeoutMs) * time.Millisecond,
		SummaryEvery:        c.Reconciler.SummaryEvery,
		CompletedSweepEvery: c.Reconciler.CompletedSweepEvery,
	}
}

// LoadConfig reads a YAML config document from URL, layered over the
// defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", URL, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return config, nil
}
