package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/job"
	"knowbot/src/infrastructure/log"
	"knowbot/src/jobctrl"
	"knowbot/src/storage/minioctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background ingest worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := log.UseProduction(); err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize logger for watermill
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
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

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(
		subscriberConfig,
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize the fragment store and ingest pipeline
	store, err := newFragmentStore()
	if err != nil {
		return fmt.Errorf("failed to initialize fragment store: %v", err)
	}

	e5, err := newEmbedder()
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	ingestor := knowledge.NewIngestor(
		store,
		e5,
		knowledge.NewNormalizer(),
		knowledge.NewChunker(),
		viper.GetString("search.collection"),
	)

	// Initialize MinioService for document archival
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}

	bucket := viper.GetString("minio.document_bucket")
	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = minioService.EnsureBucketExists(ensureCtx, bucket)
	ensureCancel()
	if err != nil {
		return fmt.Errorf("failed to ensure document bucket: %v", err)
	}

	// Initialize IngestTask
	ingestTask := jobctrl.NewIngestTask(
		ingestor,
		minioService,
		fsutil.NewLocalFileStore(),
		bucket,
		newRetention(),
	)

	// Initialize job repository and service
	jobRepo := job.NewPostgresJobRepository(db)
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger, ingestTask)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		"jobs",
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "router stopped unexpectedly")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("shutting down worker")
	cancel()
	<-router.Running()
	log.Info("router stopped")

	return nil
}
