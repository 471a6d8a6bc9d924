package app

import (
	"context"
	"fmt"
	"io"
	"isinFlow/config"
	"isinFlow/internal/app/dto"
	"isinFlow/internal/domain/normalize"
	"isinFlow/internal/domain/repository"
	"isinFlow/internal/domain/service"
	"isinFlow/internal/domain/useCases"
	ws "isinFlow/internal/handlers/websocket"
	redisrepo "isinFlow/internal/infrastructure/cache"
	"isinFlow/internal/infrastructure/queue"
	"isinFlow/internal/infrastructure/sheet"
	"isinFlow/internal/infrastructure/storage"
	"isinFlow/internal/infrastructure/webhook"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const pingTimeout = 3 * time.Second

// Processor defines the common interface for both standard and Kafka event processors
type Processor interface {
	Run(ctx context.Context) error
}

// AppContext holds all app dependencies
type AppContext struct {
	Config         *config.Config
	Location       *time.Location
	Engine         *Engine
	Broadcaster    *ws.WebSocketBroadcaster
	EventProcessor Processor
	ChangeProducer *service.ChangeProducerUseCase
	KafkaConsumer  *queue.KafkaConsumer
	KafkaProducer  *queue.KafkaProducer
	EventCh        chan *dto.ChangeDTO

	log         *slog.Logger
	closers     []namedCloser
	unsubscribe []func()
	stopProc    context.CancelFunc
	procWG      sync.WaitGroup
}

type namedCloser struct {
	name string
	io.Closer
}

// NewApp initializes the app context with all dependencies. Optional backends
// that cannot be reached are logged and left out.
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*AppContext, error) {
	if log == nil {
		log = slog.Default()
	}
	app := &AppContext{
		Config:   cfg,
		Location: cfg.Location(),
		log:      log,
	}

	ref, err := config.LoadReference(cfg.ReferenceFile)
	if err != nil {
		return nil, err
	}

	opts := EngineOptions{
		Normalizer:       normalize.New(app.Location),
		Rules:            service.NewRuleSet(ref.AutoTriggerRules()...),
		PollInterval:     cfg.PollInterval,
		FailureThreshold: cfg.FailureThreshold,
		AutoTrigger:      cfg.AutoTrigger,
		RecordsTable:     cfg.RecordsTable,
		WriteTimeout:     cfg.WriteTimeout,
		Logger:           log,
	}

	var associations repository.AssociationSource
	var history repository.AggregateHistory

	// Primary backing source (Postgres)
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresRepository(storage.PostgresConfig{
			DSN:          cfg.PostgresDSN,
			RecordsTable: cfg.RecordsTable,
		})
		if err != nil {
			log.Warn("postgres unavailable, continuing without backing source", slog.String("error", err.Error()))
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			if err := pg.Ping(pingCtx); err != nil {
				log.Warn("postgres ping failed, refreshes will report disconnected", slog.String("error", err.Error()))
			} else if cfg.PostgresMigrate {
				if err := pg.Migrate(ctx); err != nil {
					cancel()
					_ = pg.Close()
					return nil, fmt.Errorf("migrate %s: %w", cfg.RecordsTable, err)
				}
				log.Info("postgres schema migrated", slog.String("table", cfg.RecordsTable))
			}
			cancel()
			opts.Sources = append(opts.Sources, pg)
			opts.Writer = pg
			associations = pg
			app.closers = append(app.closers, namedCloser{"postgres", pg})
			log.Info("postgres backing source initialized", slog.String("table", cfg.RecordsTable))
		}
	}

	if cfg.SheetAPIURL != "" {
		opts.Sources = append(opts.Sources, sheet.NewSource(cfg.SheetAPIURL, cfg.SourceTimeout))
		log.Info("sheet source initialized")
	}

	if cfg.SQLiteArchive != "" {
		archive, err := storage.NewSQLiteSource(cfg.SQLiteArchive, cfg.RecordsTable)
		if err != nil {
			log.Warn("sqlite archive unavailable", slog.String("error", err.Error()))
		} else {
			opts.Sources = append(opts.Sources, archive)
			app.closers = append(app.closers, namedCloser{"sqlite", archive})
			log.Info("sqlite archive source initialized", slog.String("path", cfg.SQLiteArchive))
		}
	}

	if seed := ref.SeedRows(); len(seed) > 0 {
		opts.Sources = append(opts.Sources, storage.NewStaticSource("reference", seed))
		log.Info("seed rows loaded", slog.Int("rows", len(seed)))
	}

	// Snapshot cache (Redis)
	if cfg.RedisAddr != "" {
		redisRepo := redisrepo.NewRedisRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := redisRepo.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, warm start disabled", slog.String("error", err.Error()))
			_ = redisRepo.Close()
		} else {
			opts.Snapshots = redisRepo
			app.closers = append(app.closers, namedCloser{"redis", redisRepo})
			log.Info("redis snapshot cache initialized")
		}
	}

	// Journal and aggregate history (ClickHouse)
	if cfg.ClickhouseAddr != "" {
		clickhouseRepo, err := storage.NewClickHouseRepository(storage.ClickHouseConfig{
			Addr:     cfg.ClickhouseAddr,
			Database: cfg.ClickhouseDatabase,
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
			Timeout:  cfg.ClickhouseTimeout,
		})
		if err != nil {
			log.Warn("clickhouse unavailable, transition journal disabled", slog.String("error", err.Error()))
		} else {
			opts.Journal = clickhouseRepo
			history = clickhouseRepo
			app.closers = append(app.closers, namedCloser{"clickhouse", clickhouseRepo})
			log.Info("clickhouse journal initialized")
		}
	}

	if cfg.SideChannelURL != "" {
		opts.Notifier = webhook.NewNotifier(cfg.SideChannelURL, cfg.SideChannelTimeout, log)
		log.Info("side channel notifier initialized")
	}

	store := service.NewBondStore()
	canon := service.NewCanonicalizer(ref.BookrunnerAliases)
	opts.Bookrunners = service.NewBookrunnerView(
		associations,
		history,
		service.NewAggregator(canon, app.Location),
		store.FindByISIN,
		log,
	)

	app.Engine = NewEngine(store, opts)
	log.Info("sync engine initialized", slog.Int("sources", len(opts.Sources)))

	// Setup broadcaster
	app.Broadcaster = ws.NewWebSocketBroadcaster(store.Snapshot, log)
	app.attach(app.Broadcaster)

	if len(cfg.KafkaBrokers) > 0 {
		app.setupKafka(log)
	} else {
		app.setupDirectChannel(log)
	}

	return app, nil
}

// attach forwards every engine notification to b.
func (a *AppContext) attach(b useCases.Broadcaster) {
	a.unsubscribe = append(a.unsubscribe,
		a.Engine.Subscribe(b.BroadcastChange),
		a.Engine.SubscribeStatus(b.BroadcastStatus),
		a.Engine.SubscribeAggregates(b.BroadcastAggregates),
	)
}

func (a *AppContext) setupKafka(log *slog.Logger) {
	kafkaConfig := queue.KafkaConfig{
		Brokers:       a.Config.KafkaBrokers,
		Topic:         a.Config.KafkaTopic,
		ConsumerGroup: a.Config.KafkaConsumerGroup,
		BatchSize:     a.Config.KafkaBatchSize,
		BatchTimeout:  a.Config.KafkaBatchTimeout,
	}

	a.KafkaConsumer = queue.NewKafkaConsumer(kafkaConfig, log)
	a.EventProcessor = NewKafkaEventProcessor(a.KafkaConsumer, a.Engine, log)

	a.KafkaProducer = queue.NewKafkaProducer(kafkaConfig)
	a.ChangeProducer = service.NewChangeProducerUseCase(a.KafkaProducer, log)

	a.closers = append(a.closers,
		namedCloser{"kafka producer", a.KafkaProducer},
		namedCloser{"kafka consumer", a.KafkaConsumer},
	)
	log.Info("kafka consumer and producer initialized", slog.String("topic", kafkaConfig.Topic))
}

// setupDirectChannel feeds change events through an in-process channel
func (a *AppContext) setupDirectChannel(log *slog.Logger) {
	a.EventCh = make(chan *dto.ChangeDTO, a.Config.EventBufferSize)
	a.EventProcessor = NewEventProcessor(a.EventCh, a.Engine, log)
	a.ChangeProducer = service.NewChangeProducerUseCase(queue.NewChannelPublisher(a.EventCh), log)
	log.Info("kafka not configured, using direct channel")
}

// Start launches the engine and the change-feed processor. The processor
// runs until ctx ends or Cleanup is called.
func (a *AppContext) Start(ctx context.Context) {
	a.Engine.Start(ctx)

	procCtx, cancel := context.WithCancel(ctx)
	a.stopProc = cancel
	a.procWG.Add(1)
	go func() {
		defer a.procWG.Done()
		if err := a.EventProcessor.Run(procCtx); err != nil && procCtx.Err() == nil {
			a.log.Error("event processor stopped", slog.String("error", err.Error()))
		}
	}()
}

// Cleanup performs graceful shutdown of all components
func (a *AppContext) Cleanup(ctx context.Context) error {
	if a.stopProc != nil {
		a.stopProc()
	}
	a.procWG.Wait()

	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil

	if a.Engine != nil {
		a.Engine.Stop()
	}

	var err error
	for _, c := range a.closers {
		if ctx.Err() != nil {
			err = multierr.Append(err, fmt.Errorf("cleanup interrupted before %s: %w", c.name, ctx.Err()))
			break
		}
		a.log.Debug("closing", slog.String("component", c.name))
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	a.closers = nil

	if err != nil {
		a.log.Error("cleanup finished with errors", slog.String("error", err.Error()))
		return err
	}
	a.log.Info("all resources cleaned up")
	return nil
}
