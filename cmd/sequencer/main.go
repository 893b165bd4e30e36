package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/fintechdemo/ledger/internal/application/sequencer"
	"github.com/fintechdemo/ledger/internal/infrastructure/config"
	"github.com/fintechdemo/ledger/internal/infrastructure/feed"
	"github.com/fintechdemo/ledger/internal/infrastructure/logger"
	dynamostore "github.com/fintechdemo/ledger/internal/infrastructure/persistence/dynamo"
	"github.com/fintechdemo/ledger/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ledger sequencer",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("table", cfg.Dynamo.TableName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Build the AWS client config. Static credentials and a custom endpoint
	// are only used for local development against DynamoDB Local.
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Dynamo.Region),
	}
	if cfg.Dynamo.AccessKey != "" && cfg.Dynamo.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Dynamo.AccessKey, cfg.Dynamo.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Dynamo.Endpoint != "" {
			o.BaseEndpoint = &cfg.Dynamo.Endpoint
		}
	})
	streamClient := dynamodbstreams.NewFromConfig(awsCfg, func(o *dynamodbstreams.Options) {
		if cfg.Dynamo.Endpoint != "" {
			o.BaseEndpoint = &cfg.Dynamo.Endpoint
		}
	})

	store, err := dynamostore.NewStore(dynamoClient, cfg.Dynamo.TableName,
		dynamostore.WithIndexName(cfg.Dynamo.IndexName),
		dynamostore.WithLogger(log),
	)
	if err != nil {
		log.Fatal("Failed to create store", zap.Error(err))
	}

	committer := sequencer.NewCommitter(store, log)
	dispatcher := sequencer.NewDispatcher(committer, log)

	// Resolve the change stream for the table
	table, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &cfg.Dynamo.TableName,
	})
	if err != nil {
		log.Fatal("Failed to describe table", zap.Error(err))
	}
	if table.Table.LatestStreamArn == nil {
		log.Fatal("Table has no change stream enabled", zap.String("table", cfg.Dynamo.TableName))
	}
	streamARN := *table.Table.LatestStreamArn
	log.Info("Resolved change stream", zap.String("stream_arn", streamARN))

	// Checkpoints survive restarts when Redis is available
	var checkpoints feed.CheckpointStore
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		checkpoints = feed.NewRedisCheckpointStore(redisClient, cfg.App.Name)
		log.Info("Using redis checkpoint store", zap.String("addr", cfg.Redis.Addr()))
	} else {
		checkpoints = feed.NewMemoryCheckpointStore()
		log.Warn("Using in-memory checkpoint store, positions will not survive restarts")
	}

	poller := feed.NewPoller(streamClient, streamARN, dispatcher, checkpoints, log,
		feed.WithPollInterval(cfg.Feed.PollInterval),
		feed.WithBatchSize(int32(cfg.Feed.BatchSize)),
		feed.WithMaxDeliveries(cfg.Feed.MaxDeliveries),
		feed.WithRetryDelay(cfg.Feed.RetryDelay),
	)

	log.Info("Sequencer running")
	if err := poller.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("Poller stopped with error", zap.Error(err))
	}

	log.Info("Sequencer shut down cleanly")
}
