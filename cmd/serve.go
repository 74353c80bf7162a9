package cmd

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "knowbot/handler/http"
	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/integrations/llm"
	"knowbot/src/infrastructure/integrations/whisper"
	"knowbot/src/infrastructure/job"
	"knowbot/src/infrastructure/log"
	"knowbot/src/storage/minioctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knowledge-base API server",
	Long:  `The serve command starts the HTTP server the chat transport talks to.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := log.UseProduction(); err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize the fragment store and collection
	store, err := newFragmentStore()
	if err != nil {
		return fmt.Errorf("failed to initialize fragment store: %v", err)
	}

	collection := viper.GetString("search.collection")
	catalog := knowledge.NewCatalog(store, collection)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	created, err := catalog.Ensure(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ensure collection: %v", err)
	}
	if created {
		log.Info("collection created", "collection", collection)
	}

	// Initialize the retrieval path
	e5, err := newEmbedder()
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	retriever, err := knowledge.NewRetriever(
		store,
		e5,
		collection,
		knowledge.Strategy(viper.GetString("search.strategy")),
		viper.GetInt("search.limit"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %v", err)
	}

	// Initialize the model clients
	llmTimeout, err := time.ParseDuration(viper.GetString("llm.timeout"))
	if err != nil {
		return fmt.Errorf("invalid llm.timeout: %v", err)
	}
	llmClient, err := llm.NewClient(llm.Config{
		BaseURL:     viper.GetString("llm.url"),
		Token:       viper.GetString("llm.token"),
		Model:       viper.GetString("llm.model"),
		VisionModel: viper.GetString("llm.vision_model"),
		Timeout:     llmTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize llm client: %v", err)
	}

	whisperClient := whisper.NewClient(
		viper.GetString("whisper.url"),
		viper.GetString("whisper.model"),
		&nethttp.Client{Timeout: 2 * time.Minute},
	)

	files := fsutil.NewLocalFileStore()
	synthesizer := knowledge.NewSynthesizer(llmClient)
	transcoder := knowledge.NewTranscoder(llmClient, whisperClient, files, newRetention())
	tokens := knowledge.NewTokenCache()

	// Initialize PostgreSQL connection for the job repository
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher for ingest jobs
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create amqp publisher: %v", err)
	}
	defer amqpPublisher.Close()

	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(amqpPublisher, jobRepo, watermill.NewStdLogger(false, false), nil)

	// Initialize the document archive for downloads and post-delete cleanup
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}
	archive := minioctrl.NewDocumentArchive(minioService, viper.GetString("minio.document_bucket"))

	handler, err := httpHdlr.NewHandler(
		jobService,
		catalog,
		tokens,
		retriever,
		synthesizer,
		transcoder,
		archive,
		files,
		viper.GetString("media.scratch_dir"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize handler: %v", err)
	}

	// Setup gin router
	r := gin.Default()
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &nethttp.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			log.Error(err, "server stopped unexpectedly")
			os.Exit(1)
		}
	}()
	log.Info("server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Attempt graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited")
	return nil
}
