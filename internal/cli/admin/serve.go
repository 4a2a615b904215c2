package admin

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/api/handlers"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/jobs"
	"github.com/parleyhq/parley/internal/openai"
	"github.com/parleyhq/parley/internal/repository"
	"github.com/parleyhq/parley/internal/server"
	"github.com/parleyhq/parley/internal/service"
	"github.com/parleyhq/parley/internal/storage"
	"github.com/parleyhq/parley/internal/telemetry"
	"github.com/parleyhq/parley/internal/workerpool"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and background workers",
		Long:  "Start the parley API server, the document processing pipeline, and the embedding backfill worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	projectRepo := repository.NewProjectRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	synthRepo := repository.NewSynthesisRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var objectStore service.ObjectStore
	var fetcher service.ObjectFetcher
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		objectStore = s3Client
		fetcher = s3Client
	} else {
		objectStore = &noOpObjectStore{}
	}

	workerPool := workerpool.New(cfg.WorkerPoolSize)
	log.Printf("worker pool started with %d units", workerPool.Stats().Total)

	pipelineSvc := service.NewPipelineService(docRepo, txRunner, fetcher, service.NewTextProcessor(), workerPool, cfg.ProcessTimeout)

	var pipelineWorker *jobs.Worker
	if fetcher != nil {
		pipelineWorker = jobs.NewWorker("pipeline", pipelineSvc, cfg.PollInterval)
		go pipelineWorker.Start(ctx)
	} else {
		log.Println("pipeline worker disabled: S3 storage not configured")
	}

	var embeddingClient service.EmbeddingClient
	var analyzer service.ConversationAnalyzer
	var embeddingWorker *jobs.Worker
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
		analyzer = openai.NewAnalyzer(cfg.OpenAIAPIKey, "")

		embeddingSvc := service.NewEmbeddingService(embeddingClient, chunkRepo)
		embeddingWorker = jobs.NewWorker("embedding", embeddingSvc, 10*time.Second)
		go embeddingWorker.Start(ctx)
	} else {
		embeddingClient = &noOpEmbeddingClient{}
		analyzer = &noOpAnalyzer{}
		log.Println("embedding worker disabled: OpenAI not configured")
	}

	projectSvc := service.NewProjectService(projectRepo)
	documentSvc := service.NewDocumentService(docRepo, chunkRepo, projectRepo, objectStore)
	conversationSvc := service.NewConversationService(convRepo, projectRepo)
	synthesisSvc := service.NewSynthesisService(synthRepo, convRepo, docRepo, analyzer, service.SynthesisThresholds{
		MinConversations: cfg.SynthesisMinConversations,
		MinMessages:      cfg.SynthesisMinMessages,
	})
	retrievalSvc := service.NewRetrievalService(embeddingClient, chunkRepo)
	reprocessSvc := service.NewReprocessService(docRepo, txRunner)

	router := server.NewRouter(server.RouterConfig{
		APIToken:            cfg.APIToken,
		ProjectHandler:      handlers.NewProjectHandler(projectSvc),
		DocumentHandler:     handlers.NewDocumentHandler(documentSvc),
		ConversationHandler: handlers.NewConversationHandler(conversationSvc),
		SynthesisHandler:    handlers.NewSynthesisHandler(synthesisSvc),
		SearchHandler:       handlers.NewSearchHandler(retrievalSvc),
		AdminHandler:        handlers.NewAdminHandler(reprocessSvc, workerPool, docRepo),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if pipelineWorker != nil {
		pipelineWorker.Stop()
	}
	if embeddingWorker != nil {
		embeddingWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker pool shutdown incomplete: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type noOpObjectStore struct{}

func (s *noOpObjectStore) Upload(ctx context.Context, key string, contentType string, body io.Reader) error {
	return domain.NewDomainError(domain.ErrCodeInvalidOperation, "storage not configured: PARLEY_S3_ENDPOINT required")
}

func (s *noOpObjectStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return "", domain.NewDomainError(domain.ErrCodeInvalidOperation, "storage not configured: PARLEY_S3_ENDPOINT required")
}

func (s *noOpObjectStore) DeleteObject(ctx context.Context, key string) error {
	return domain.NewDomainError(domain.ErrCodeInvalidOperation, "storage not configured: PARLEY_S3_ENDPOINT required")
}

type noOpEmbeddingClient struct{}

func (c *noOpEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "embedding provider not configured: PARLEY_OPENAI_API_KEY required")
}

type noOpAnalyzer struct{}

func (a *noOpAnalyzer) AnalyzeConversations(ctx context.Context, projectID string, transcripts []service.ConversationTranscript, documents []*domain.Document) (*domain.ConversationAnalysis, error) {
	return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "analyzer not configured: PARLEY_OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
