package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/greetings/internal/catalog"
	"github.com/hanko-field/greetings/internal/forms"
	"github.com/hanko-field/greetings/internal/handlers"
	"github.com/hanko-field/greetings/internal/platform/config"
	"github.com/hanko-field/greetings/internal/platform/firebaseapp"
	pfirestore "github.com/hanko-field/greetings/internal/platform/firestore"
	"github.com/hanko-field/greetings/internal/platform/idempotency"
	"github.com/hanko-field/greetings/internal/platform/imaging"
	"github.com/hanko-field/greetings/internal/platform/observability"
	"github.com/hanko-field/greetings/internal/platform/storage"
	"github.com/hanko-field/greetings/internal/platform/telemetry"
	"github.com/hanko-field/greetings/internal/presentation"
	"github.com/hanko-field/greetings/internal/repositories"
	firestoreRepo "github.com/hanko-field/greetings/internal/repositories/firestore"
	"github.com/hanko-field/greetings/internal/repositories/memory"
	"github.com/hanko-field/greetings/internal/services"
	"github.com/hanko-field/greetings/internal/web"
)

const (
	pubsubEmulatorEnv = "PUBSUB_EMULATOR_HOST"
	devTemplatesDir   = "internal/web/templates"
	devStaticDir      = "internal/web/static"
	uploadsPrefix     = "uploads"
	replaySweepEvery  = 10 * time.Minute
)

// cardStore bundles the persistence backends selected by configuration.
type cardStore struct {
	cards    repositories.CardRepository
	uploader storage.Uploader
	uploads  http.Handler
	replays  idempotency.Store
	checks   []repositories.DependencyCheck
	close    func()
}

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(observability.LoggerOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("cards")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)
	registry := catalog.Default()

	store, err := newCardStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise card store", zap.Error(err), zap.String("store", cfg.Store))
	}
	defer store.close()

	counters, err := observability.NewCounters()
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	publisher, stopPublisher, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise telemetry publisher", zap.Error(err))
	}
	defer stopPublisher()

	recorder, err := services.NewTelemetry(services.TelemetryDeps{
		Publisher: publisher,
		Metrics:   counters,
		Logger:    observability.EventLogger(logger.Named("telemetry")),
	})
	if err != nil {
		logger.Fatal("failed to initialise telemetry", zap.Error(err))
	}

	cardService, err := services.NewCardService(services.CardServiceDeps{
		Cards:     store.cards,
		Catalog:   registry,
		Validator: forms.New(registry),
		Uploader:  store.uploader,
		Images:    imaging.NewNormalizer(cfg.Uploads.MaxDimension, int64(cfg.Uploads.TargetBytes)),
		Telemetry: recorder,
		Metrics:   counters,
		Logger:    observability.EventLogger(logger.Named("cards")),
	})
	if err != nil {
		logger.Fatal("failed to initialise card service", zap.Error(err))
	}

	systemService, err := newSystemService(store.checks, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	renderer, staticFS, err := newWebAssets(cfg)
	if err != nil {
		logger.Fatal("failed to initialise templates", zap.Error(err))
	}
	intro, err := web.Intro()
	if err != nil {
		logger.Fatal("failed to render intro", zap.Error(err))
	}

	sessions := presentation.NewSessions(
		presentation.WithSessionTTL(cfg.Presentation.SessionTTL),
		presentation.WithMaxSessions(cfg.Presentation.MaxSessions),
		presentation.WithEnvelopeOptions(presentation.WithOpenDelay(cfg.Presentation.OpenDelay)),
	)
	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	backgroundWG.Add(2)
	go func() {
		defer backgroundWG.Done()
		sessions.Run(backgroundCtx, 0)
	}()
	go func() {
		defer backgroundWG.Done()
		idempotency.Sweep(backgroundCtx, store.replays, replaySweepEvery, logger.Named("idempotency"))
	}()

	submitLimit := handlers.SubmitRateLimit(cfg.RateLimits.SubmitPerMinute, nil)
	replayGuard := idempotency.Guard(store.replays,
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMaxBodyBytes(2*cfg.Uploads.MaxBytes+(1<<20)),
	)
	cardHandlers := handlers.NewCardHandlers(
		handlers.WithCardService(cardService),
		handlers.WithCardCatalog(registry),
		handlers.WithCardShareOrigin(cfg.Site.Origin),
		handlers.WithCardMaxUploadBytes(cfg.Uploads.MaxBytes),
		handlers.WithCardSubmitMiddleware(submitLimit, replayGuard),
	)
	pageHandlers := handlers.NewPageHandlers(
		handlers.WithPageCardService(cardService),
		handlers.WithPageCatalog(registry),
		handlers.WithPageRenderer(renderer),
		handlers.WithPageSessions(sessions),
		handlers.WithPageShareOrigin(cfg.Site.Origin),
		handlers.WithPageIntro(intro),
		handlers.WithPageSubmitMiddleware(submitLimit),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.HTMXMiddleware,
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAPIRoutes(cardHandlers.Routes),
		handlers.WithPageRoutes(pageHandlers.Routes),
		handlers.WithPageMiddlewares(web.CSRF(strings.HasPrefix(cfg.Site.Origin, "https://"))),
		handlers.WithMount("/assets", web.AssetsWithCache(staticFS, "/assets")),
	}
	if store.uploads != nil {
		opts = append(opts, handlers.WithMount("/"+uploadsPrefix, store.uploads))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store))
	go func() {
		serverLogger.Info("greeting cards listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	stopBackground()
	backgroundWG.Wait()

	if err := recorder.Flush(shutdownCtx); err != nil {
		logger.Warn("telemetry flush incomplete", zap.Error(err))
	}
}

func newCardStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (cardStore, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory card store; cards are lost on restart")
		repo := memory.NewCardRepository()
		uploads := storage.NewMemoryUploader(uploadsPrefix)
		return cardStore{
			cards:    repo,
			uploader: uploads,
			uploads:  uploads,
			replays:  idempotency.NewMemoryStore(),
			checks: []repositories.DependencyCheck{
				{Name: "cards", Check: repo.Ping},
			},
			close: func() {},
		}, nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		return cardStore{}, fmt.Errorf("firestore client: %w", err)
	}
	closeProvider := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}

	repo, err := firestoreRepo.NewCardRepository(provider, cfg.Firestore.Collection)
	if err != nil {
		closeProvider()
		return cardStore{}, err
	}

	app, err := firebaseapp.New(ctx, cfg.Firebase, cfg.Storage)
	if err != nil {
		closeProvider()
		return cardStore{}, err
	}
	bucket, err := firebaseapp.DefaultBucket(ctx, app)
	if err != nil {
		closeProvider()
		return cardStore{}, err
	}
	uploader, err := storage.NewBucketUploader(bucket, cfg.Storage.Bucket, storage.WithPublicBaseURL(cfg.Storage.PublicBaseURL))
	if err != nil {
		closeProvider()
		return cardStore{}, err
	}

	replays, err := idempotency.NewFirestoreStore(provider, idempotency.WithCollection(cfg.Idempotency.Collection))
	if err != nil {
		closeProvider()
		return cardStore{}, err
	}

	return cardStore{
		cards:    repo,
		uploader: uploader,
		replays:  replays,
		checks: []repositories.DependencyCheck{
			{Name: "firestore", Timeout: 1500 * time.Millisecond, Check: repo.Ping},
			{Name: "storage", Timeout: 1500 * time.Millisecond, Check: bucketCheck(bucket)},
		},
		close: closeProvider,
	}, nil
}

func bucketCheck(bucket *gcs.BucketHandle) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := bucket.Attrs(ctx)
		return err
	}
}

// newEventPublisher publishes to Pub/Sub when a topic is configured and to the
// log otherwise.
func newEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.EventPublisher, func(), error) {
	topicID := strings.TrimSpace(cfg.Telemetry.Topic)
	if topicID == "" {
		return telemetry.NewLogPublisher(logger.Named("events")), func() {}, nil
	}

	if host := strings.TrimSpace(cfg.Telemetry.EmulatorHost); host != "" {
		if err := os.Setenv(pubsubEmulatorEnv, host); err != nil {
			return nil, nil, fmt.Errorf("configure pubsub emulator: %w", err)
		}
	}
	var clientOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, traceProjectID(cfg), clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := telemetry.NewPubSubPublisher(client.Topic(topicID))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	stop := func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, stop, nil
}

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

// newWebAssets serves templates and static files from disk in dev mode so
// edits show up without rebuilding.
func newWebAssets(cfg config.Config) (*web.Renderer, fs.FS, error) {
	if cfg.Site.DevMode {
		renderer, err := web.NewRenderer(web.WithDevDir(devTemplatesDir))
		if err != nil {
			return nil, nil, err
		}
		return renderer, os.DirFS(devStaticDir), nil
	}
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, nil, err
	}
	static, err := web.StaticFS()
	if err != nil {
		return nil, nil, err
	}
	return renderer, static, nil
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("CARDS_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(os.Getenv("CARDS_ENVIRONMENT"))
	if environment == "" {
		environment = "production"
		if cfg.Site.DevMode || cfg.Store == config.StoreMemory {
			environment = "local"
		}
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
