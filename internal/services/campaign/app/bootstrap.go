package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/louisbranch/campaignlog/internal/services/campaign/archive"
	"github.com/louisbranch/campaignlog/internal/services/campaign/branch"
	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/registry"
	"github.com/louisbranch/campaignlog/internal/services/campaign/replay"
	"github.com/louisbranch/campaignlog/internal/services/campaign/sim"
	"github.com/louisbranch/campaignlog/internal/services/campaign/snapshot"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/memory"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/postgres"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/sqlite"
)

type bootstrapOptions struct {
	logger     *log.Logger
	registerer prometheus.Registerer
	stepper    sim.Stepper
	keyring    *integrity.Keyring
	store      storage.Store
	sink       archive.Sink
	newID      func() (string, error)
}

// Option customizes Bootstrap.
type Option func(*bootstrapOptions)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *log.Logger) Option {
	return func(o *bootstrapOptions) {
		o.logger = logger
	}
}

// WithRegisterer registers metrics on reg instead of a private registry.
// Nothing serves the private registry, so an embedding process that wants to
// scrape the instruments must pass its own registerer here.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *bootstrapOptions) {
		o.registerer = reg
	}
}

// WithStepper replaces the reference ledger stepper.
func WithStepper(stepper sim.Stepper) Option {
	return func(o *bootstrapOptions) {
		o.stepper = stepper
	}
}

// WithKeyring skips loading the signing keyring from the environment.
func WithKeyring(ring *integrity.Keyring) Option {
	return func(o *bootstrapOptions) {
		o.keyring = ring
	}
}

// WithStore uses an already opened store; Config.StoreDriver is ignored and
// the service takes ownership of the store.
func WithStore(store storage.Store) Option {
	return func(o *bootstrapOptions) {
		o.store = store
	}
}

// WithArchiveSink uses sink for exports; Config.ArchiveDriver is ignored.
func WithArchiveSink(sink archive.Sink) Option {
	return func(o *bootstrapOptions) {
		o.sink = sink
	}
}

// WithIDGenerator overrides campaign id generation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *bootstrapOptions) {
		o.newID = fn
	}
}

// Bootstrap opens the configured backend and builds a Service.
func Bootstrap(ctx context.Context, cfg Config, opts ...Option) (svc *Service, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := bootstrapOptions{logger: log.Default(), stepper: sim.Ledger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = log.Default()
	}

	ring := o.keyring
	if ring == nil {
		ring, err = loadKeyring(o.logger)
		if err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil {
		store, err = openStore(ctx, cfg, ring)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil {
			if closeErr := store.Close(); closeErr != nil {
				o.logger.Printf("close campaign store: %v", closeErr)
			}
		}
	}()

	mt := metrics.New(o.registerer)
	events, err := eventlog.New(store, ring,
		eventlog.WithMaxAttempts(cfg.AppendMaxAttempts),
		eventlog.WithRetryBackoff(cfg.AppendRetryBackoff),
		eventlog.WithMetrics(mt),
	)
	if err != nil {
		return nil, err
	}
	snapshots, err := snapshot.New(store, store,
		snapshot.WithCadence(cfg.SnapshotCadence),
		snapshot.WithWorkers(cfg.SnapshotWorkers),
		snapshot.WithWriteTimeout(cfg.SnapshotTimeout),
		snapshot.WithLogger(o.logger),
		snapshot.WithMetrics(mt),
	)
	if err != nil {
		return nil, err
	}
	engine, err := replay.New(store, events, snapshots, replay.WithMetrics(mt))
	if err != nil {
		return nil, err
	}
	var regOpts []registry.Option
	if o.newID != nil {
		regOpts = append(regOpts, registry.WithIDGenerator(o.newID))
	}
	reg, err := registry.New(store, regOpts...)
	if err != nil {
		return nil, err
	}
	branches, err := branch.New(reg, events, engine, snapshots,
		branch.WithLogger(o.logger),
		branch.WithMetrics(mt),
	)
	if err != nil {
		return nil, err
	}

	sink := o.sink
	if sink == nil {
		sink, err = openArchiveSink(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	var exporter *archive.Exporter
	if sink != nil {
		exporter, err = archive.NewExporter(events, sink)
		if err != nil {
			return nil, err
		}
	}

	return &Service{
		store:     store,
		events:    events,
		snapshots: snapshots,
		replay:    engine,
		registry:  reg,
		branches:  branches,
		exporter:  exporter,
		stepper:   o.stepper,
		logger:    o.logger,
	}, nil
}

// loadKeyring reads the signing keys, falling back to the development key
// when none are configured.
func loadKeyring(logger *log.Logger) (*integrity.Keyring, error) {
	ring, err := integrity.KeyringFromEnv()
	if err == nil {
		return ring, nil
	}
	if !errors.Is(err, integrity.ErrNoKeyMaterial) {
		return nil, fmt.Errorf("load event keyring: %w", err)
	}
	logger.Printf("event signing key not configured, using development keyring: set %s for production", integrity.EnvHMACKey)
	return integrity.DevelopmentKeyring(), nil
}

func openStore(ctx context.Context, cfg Config, ring *integrity.Keyring) (storage.Store, error) {
	switch cfg.StoreDriver {
	case DriverMemory:
		return memory.New(ring)
	case DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, ring)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, ring)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func openArchiveSink(ctx context.Context, cfg Config) (archive.Sink, error) {
	switch cfg.ArchiveDriver {
	case ArchiveFS:
		return archive.NewFSSink(cfg.ArchiveDir)
	case ArchiveS3:
		return archive.NewS3Sink(ctx, archive.S3Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
			Prefix:    cfg.ArchiveS3Prefix,
		})
	default:
		return nil, nil
	}
}
