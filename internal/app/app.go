// Package app initializes and holds long-lived services for one catalog build,
// acting as a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sgs-catalog/internal/api"
	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/checkpoint"
	"github.com/JakeFAU/sgs-catalog/internal/clock/system"
	"github.com/JakeFAU/sgs-catalog/internal/config"
	"github.com/JakeFAU/sgs-catalog/internal/enricher"
	"github.com/JakeFAU/sgs-catalog/internal/hash/sha256"
	"github.com/JakeFAU/sgs-catalog/internal/id/uuid"
	"github.com/JakeFAU/sgs-catalog/internal/metadata"
	"github.com/JakeFAU/sgs-catalog/internal/pipeline"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
	memorypublisher "github.com/JakeFAU/sgs-catalog/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sgs-catalog/internal/publisher/pubsub"
	"github.com/JakeFAU/sgs-catalog/internal/retry"
	"github.com/JakeFAU/sgs-catalog/internal/scanner"
	"github.com/JakeFAU/sgs-catalog/internal/sink"
	gcsstorage "github.com/JakeFAU/sgs-catalog/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sgs-catalog/internal/storage/local"
	memorystorage "github.com/JakeFAU/sgs-catalog/internal/storage/memory"
	pgstore "github.com/JakeFAU/sgs-catalog/internal/storage/postgres"
	"github.com/JakeFAU/sgs-catalog/internal/transport"
)

// LocalTopic names the in-process topic that receives completion notices when
// no Pub/Sub topic is configured.
const LocalTopic = "sgs-catalog.local"

// App holds the services shared by the commands. It is built once per process
// and closed on exit.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	tracker *progress.Tracker

	pool       pgstore.Pool
	gcs        *gcstorage.Client
	pubsub     *gcppublisher.Publisher
	notices    *memorypublisher.Publisher
	checkpoint *checkpoint.Store
	pipeline   *pipeline.Pipeline
	status     *api.Server
}

// Options can replace infrastructure that would otherwise be dialled from the
// configuration. Tests use it to inject in-process fakes.
type Options struct {
	Pool       pgstore.Pool
	GCS        *gcstorage.Client
	Publisher  catalog.Publisher
	Transport  catalog.SessionTransport
	Checkpoint checkpoint.Backend
}

// New wires every component named by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, tracker: progress.NewTracker(), pool: opts.Pool, gcs: opts.GCS}
	logger.Info("building catalog services",
		zap.Int("lo", cfg.Scan.Lo),
		zap.Int("hi", cfg.Scan.Hi),
		zap.String("checkpoint", cfg.Checkpoint.Backend),
		zap.Strings("sinks", cfg.Output.Sinks),
	)

	if err := a.setupDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	store, err := a.openCheckpoint(ctx, opts.Checkpoint)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.checkpoint = store

	out, err := a.setupSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx, opts.Publisher)
	if err != nil {
		a.Close()
		return nil, err
	}

	client := opts.Transport
	if client == nil {
		client = transport.New(transport.Config{
			Concurrency:       cfg.HTTP.Concurrency,
			Timeout:           cfg.RequestTimeout(),
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			UserAgent:         cfg.HTTP.UserAgent,
		}, logger.Named("transport"))
	}

	if a.pipeline, err = a.setupPipeline(client, out, publisher); err != nil {
		a.Close()
		return nil, err
	}
	a.status = api.NewServer(a.tracker, a.checkpoint, logger.Named("api"))
	return a, nil
}

// OpenCheckpoint opens only the checkpoint store, for commands that do not
// touch the network. The returned App must still be closed.
func OpenCheckpoint(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, tracker: progress.NewTracker()}
	if err := a.setupDatabase(ctx); err != nil {
		return nil, err
	}
	store, err := a.openCheckpoint(ctx, nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.checkpoint = store
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Checkpoint returns the opened checkpoint store.
func (a *App) Checkpoint() *checkpoint.Store {
	return a.checkpoint
}

// Pipeline returns the assembled pipeline, or nil for a checkpoint-only App.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Tracker returns the run progress tracker.
func (a *App) Tracker() *progress.Tracker {
	return a.tracker
}

// Notices returns the completion notices kept in memory when no Pub/Sub topic
// is configured.
func (a *App) Notices() []memorypublisher.PublishedMessage {
	if a.notices == nil {
		return nil
	}
	return a.notices.Messages()
}

// StatusHandler returns the status API handler, or nil for a checkpoint-only App.
func (a *App) StatusHandler() http.Handler {
	if a.status == nil {
		return nil
	}
	return a.status.Handler()
}

// ServeStatus runs the status listener until ctx ends when metrics.addr is set.
func (a *App) ServeStatus(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" || a.status == nil {
		return
	}
	go func() {
		if err := a.status.ListenAndServe(ctx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
}

// Run executes a full catalog build while serving status, if configured.
func (a *App) Run(ctx context.Context) (pipeline.Result, error) {
	if a.pipeline == nil {
		return pipeline.Result{}, errors.New("app was opened without a pipeline")
	}
	a.ServeStatus(ctx)
	return a.pipeline.Run(ctx)
}

// Scan runs discovery only.
func (a *App) Scan(ctx context.Context) ([]catalog.Candidate, error) {
	if a.pipeline == nil {
		return nil, errors.New("app was opened without a pipeline")
	}
	a.ServeStatus(ctx)
	return a.pipeline.Scan(ctx)
}

// Reset clears the checkpoint.
func (a *App) Reset(ctx context.Context) error {
	if a.checkpoint == nil {
		return errors.New("checkpoint is not open")
	}
	return a.checkpoint.Reset(ctx)
}

// Close releases every client the App opened.
func (a *App) Close() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.pool != nil || !a.cfg.UsesPostgres() {
		return nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	a.logger.Info("postgres pool initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return nil
}

func (a *App) openCheckpoint(ctx context.Context, backend checkpoint.Backend) (*checkpoint.Store, error) {
	if backend == nil {
		var err error
		switch a.cfg.Checkpoint.Backend {
		case config.BackendPostgres:
			backend, err = pgstore.NewCheckpointStore(a.pool, a.cfg.DB.CheckpointTable, a.cfg.Checkpoint.Archive)
			if err != nil {
				return nil, fmt.Errorf("postgres checkpoint init failed: %w", err)
			}
			a.logger.Info("using postgres checkpoint", zap.String("table", a.cfg.DB.CheckpointTable))
		case config.BackendMemory:
			backend = checkpoint.NewMemoryBackend()
			a.logger.Warn("using in-memory checkpoint; progress will not survive a restart")
		default:
			backend = checkpoint.NewFileBackend(a.cfg.Checkpoint.Path, a.cfg.Checkpoint.Archive)
			a.logger.Info("using file checkpoint", zap.String("path", a.cfg.Checkpoint.Path))
		}
	}
	store, err := checkpoint.Open(ctx, backend, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	return store, nil
}

func (a *App) setupSinks(ctx context.Context) (catalog.Sink, error) {
	format, err := sink.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	hasher := sha256.New()
	out := make(sink.Fanout, 0, len(a.cfg.Output.Sinks))
	for _, name := range a.cfg.Output.Sinks {
		var store sink.BlobStore
		switch name {
		case config.SinkPostgres:
			table, err := pgstore.NewCatalogStore(a.pool, a.cfg.DB.CatalogTable)
			if err != nil {
				return nil, fmt.Errorf("postgres catalog init failed: %w", err)
			}
			s, err := sink.NewTableSink(table, hasher)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
			a.logger.Info("using postgres catalog sink", zap.String("table", table.Location()))
			continue
		case config.SinkGCS:
			if store, err = a.gcsStore(ctx); err != nil {
				return nil, err
			}
		case config.SinkMemory:
			store = memorystorage.NewBlobStore()
		default:
			if store, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Path}); err != nil {
				return nil, fmt.Errorf("local blob store init failed: %w", err)
			}
		}
		s, err := sink.NewBlobSink(sink.BlobConfig{
			Name:     name,
			BaseName: a.cfg.Output.Name,
			Format:   format,
		}, store, hasher, a.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		a.logger.Info("using catalog sink", zap.String("sink", name), zap.String("object", s.ObjectPath()))
	}
	return out, nil
}

func (a *App) gcsStore(ctx context.Context) (*gcsstorage.BlobStore, error) {
	if a.gcs == nil {
		var opts []option.ClientOption
		if a.cfg.Output.GCSEndpoint != "" {
			opts = append(opts, option.WithEndpoint(a.cfg.Output.GCSEndpoint), option.WithoutAuthentication())
		}
		client, err := gcstorage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
	}
	store, err := gcsstorage.New(a.gcs, gcsstorage.Config{
		Bucket: a.cfg.Output.GCSBucket,
		Prefix: a.cfg.Output.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs blob store init failed: %w", err)
	}
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context, injected catalog.Publisher) (catalog.Publisher, error) {
	if injected != nil {
		return injected, nil
	}
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no pubsub topic configured; completion notices stay in memory",
			zap.String("topic", LocalTopic),
		)
		a.notices = memorypublisher.New()
		return a.notices, nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) topic() string {
	if a.cfg.PubSub.TopicName != "" {
		return a.cfg.PubSub.TopicName
	}
	return LocalTopic
}

func (a *App) setupPipeline(client catalog.SessionTransport, out catalog.Sink, publisher catalog.Publisher) (*pipeline.Pipeline, error) {
	if a.checkpoint == nil {
		return nil, errors.New("checkpoint must be opened before the pipeline")
	}
	endpoints := a.cfg.Endpoints()
	clock := system.New()

	scan, err := scanner.New(scanner.Config{
		Lo:           a.cfg.Scan.Lo,
		Hi:           a.cfg.Scan.Hi,
		BatchSize:    a.cfg.Scan.BatchSize,
		Concurrency:  a.cfg.HTTP.Concurrency,
		ProbeTimeout: a.cfg.ProbeTimeout(),
		DailyMarker:  a.cfg.Provider.DailyMarker,
	}, client, a.checkpoint, endpoints, retry.NewPolicy(a.cfg.Scan.MaxRetries, a.cfg.Scan.BackoffUnit), clock, a.tracker, a.logger)
	if err != nil {
		return nil, fmt.Errorf("scanner init failed: %w", err)
	}
	enrich, err := enricher.New(enricher.Config{
		Concurrency: a.cfg.HTTP.Concurrency,
		Timeout:     a.cfg.RequestTimeout(),
		DailyWindow: a.cfg.DailyWindow(),
	}, client, endpoints, metadata.NewParser(metadata.DefaultLabels()), clock, a.tracker, a.logger)
	if err != nil {
		return nil, fmt.Errorf("enricher init failed: %w", err)
	}

	a.logger.Info("pipeline config",
		zap.Int("batch_size", a.cfg.Scan.BatchSize),
		zap.Int("concurrency", a.cfg.HTTP.Concurrency),
		zap.Int("max_retries", a.cfg.Scan.MaxRetries),
		zap.Duration("probe_timeout", a.cfg.ProbeTimeout()),
		zap.Duration("request_timeout", a.cfg.RequestTimeout()),
	)
	return pipeline.New(pipeline.Config{
		Lo:    a.cfg.Scan.Lo,
		Hi:    a.cfg.Scan.Hi,
		Topic: a.topic(),
	}, pipeline.Deps{
		Scanner:    scan,
		Enricher:   enrich,
		Activeness: a.cfg.ActivenessClassifier(),
		Assembler:  catalog.NewAssembler(a.cfg.Provider.CodeTemplate, endpoints),
		Checkpoint: a.checkpoint,
		Sink:       out,
		Publisher:  publisher,
		IDs:        uuid.New(),
		Clock:      clock,
		Tracker:    a.tracker,
	}, a.logger)
}
