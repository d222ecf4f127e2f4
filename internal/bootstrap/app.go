package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"assessment-backend/internal/artifacts"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/exports"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/overrides"
	"assessment-backend/internal/queue"
	"assessment-backend/internal/shared/auth"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/server"
	"assessment-backend/internal/shared/storage/db"
	"assessment-backend/internal/shared/storage/object"
	localstore "assessment-backend/internal/shared/storage/object/local"
	s3store "assessment-backend/internal/shared/storage/object/s3"
	"assessment-backend/internal/shared/telemetry"
)

// App holds the wired services, the export worker and the HTTP router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.Store
	// Queue is nil unless EXPORT_QUEUE_URL is set.
	Queue *queue.SQSClient

	DocumentsRepo documents.Repo
	OverridesRepo overrides.Repo
	QueueRepo     exportqueue.Repo
	GeneratedRepo generateddocs.Repo

	Documents     *documents.Service
	Overrides     *overrides.Service
	Confirmations *confirmations.Service
	Exports       *exports.Service
	DeadLetters   *deadletters.Service
	Processor     *exports.Processor
	Worker        *exports.Worker
	Sweeper       *exports.Sweeper
	Verifier      *auth.Verifier
}

// Build connects storage and wires every service. Without a DATABASE_URL in
// dev the app runs on in-memory repositories.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.Env)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store, Queue: client, Verifier: verifier}
	app.buildServices()

	var ping func(ctx context.Context) error
	if sqlDB != nil {
		ping = sqlDB.PingContext
	}
	app.Router = server.NewRouter(server.Options{
		Config:   cfg,
		Verifier: verifier,
		Ping:     ping,
		Handlers: []server.Registrar{
			documents.NewHandler(app.Documents),
			overrides.NewHandler(app.Overrides, app.Documents),
			confirmations.NewHandler(app.Confirmations, app.Documents),
			exports.NewHandler(app.Exports, app.Documents),
			deadletters.NewHandler(app.DeadLetters),
		},
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (*queue.SQSClient, error) {
	if strings.TrimSpace(cfg.ExportQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ExportQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

func (app *App) buildServices() {
	var (
		docRepo   documents.Repo
		ovRepo    overrides.Repo
		confRepo  confirmations.Repo
		queueRepo exportqueue.Repo
		genRepo   generateddocs.Repo
		dlqRepo   deadletters.Repo
	)
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		ovRepo = &overrides.PGRepo{DB: app.DB}
		confRepo = &confirmations.PGRepo{DB: app.DB}
		queueRepo = &exportqueue.PGRepo{DB: app.DB}
		genRepo = &generateddocs.PGRepo{DB: app.DB}
		dlqRepo = &deadletters.PGRepo{DB: app.DB}
	} else {
		memDocs := documents.NewMemoryRepo()
		memOverrides := overrides.NewMemoryRepo(memDocs)
		memQueue := exportqueue.NewMemoryRepo()
		docRepo = memDocs
		ovRepo = memOverrides
		queueRepo = memQueue
		confRepo = confirmations.NewMemoryRepo(memDocs, memOverrides, memQueue)
		genRepo = generateddocs.NewMemoryRepo()
		dlqRepo = deadletters.NewMemoryRepo(memQueue)
	}
	app.DocumentsRepo = docRepo
	app.OverridesRepo = ovRepo
	app.QueueRepo = queueRepo
	app.GeneratedRepo = genRepo

	cfg := app.Config.Export
	app.DeadLetters = &deadletters.Service{Repo: dlqRepo, Queue: queueRepo}
	app.Processor = &exports.Processor{
		Queue:             queueRepo,
		Documents:         docRepo,
		Generator:         artifacts.Generator{},
		Store:             app.Store,
		Generated:         genRepo,
		DeadLetters:       app.DeadLetters,
		GenerationTimeout: cfg.GenerationTimeout,
	}
	app.Worker = exports.NewWorker(app.Processor, queueRepo, cfg.PollInterval)
	app.Sweeper = &exports.Sweeper{Queue: queueRepo, Orphans: genRepo, Store: app.Store, Interval: cfg.SweepInterval}

	notifier := app.notifier()
	app.Documents = &documents.Service{Store: app.Store, Repo: docRepo}
	app.Overrides = &overrides.Service{Repo: ovRepo, Questions: docRepo, Standards: overrides.BasicStandards{}}
	app.Confirmations = &confirmations.Service{
		Repo:        confRepo,
		Questions:   docRepo,
		Overrides:   ovRepo,
		Generated:   genRepo,
		Queue:       queueRepo,
		Notifier:    notifier,
		MaxAttempts: cfg.MaxAttempts,
	}
	app.Processor.Snapshots = app.Confirmations
	app.DeadLetters.Notifier = notifier
	app.Exports = &exports.Service{
		Queue:       queueRepo,
		Generated:   genRepo,
		Snapshots:   app.Confirmations,
		Store:       app.Store,
		Notifier:    notifier,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// notifier kicks the in-process worker and nudges remote workers over SQS,
// whichever are configured.
func (app *App) notifier() exportqueue.Notifier {
	var ns exportqueue.Notifiers
	if app.Config.Export.InProcessWorker {
		ns = append(ns, app.Worker)
	}
	if app.Queue != nil {
		ns = append(ns, &queue.Publisher{Client: app.Queue})
	}
	return ns
}

// RunBackground runs the export worker and sweeper until ctx is cancelled.
func (app *App) RunBackground(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Worker.Run(gctx) })
	g.Go(func() error { return app.Sweeper.Run(gctx) })
	return g.Wait()
}

// Close releases the database pool.
func (app *App) Close() error {
	if app.DB == nil {
		return nil
	}
	return app.DB.Close()
}
