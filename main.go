// blueberry-sentry-forwarder receives batches of log records from a Datadog
// log pipeline and re-emits each as an independent Sentry event, with the
// message normalized so that structurally identical errors group together.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/intake"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/logging"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/mapper"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/sentry"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/storage"
	s3storage "github.com/srich36/blueberry-sentry-forwarder/pkg/storage/s3"
)

var args struct {
	Listen            string        `arg:"env:LISTEN_ADDR" default:":8080"`
	DSNs              []string      `arg:"env:SENTRY_DSNS,required" help:"Sentry DSNs, or arn:aws:secretsmanager: ARNs resolving to one"`
	TLSSkipVerify     bool          `arg:"env:SENTRY_TLS_SKIP_VERIFY"`
	Proxy             string        `arg:"env:SENTRY_PROXY"`
	Timeout           time.Duration `arg:"env:SENTRY_TIMEOUT" default:"10s"`
	Balance           string        `arg:"env:SENTRY_BALANCE" default:"first_available"`
	Region            string        `arg:"env:AWS_REGION" default:"us-east-1"`
	S3URL             string        `arg:"env:S3_URL" help:"failure storage, example: https://YOURBUCKET.s3.us-east-1.amazonaws.com/YOURFOLDER/"`
	S3AccessKeyID     string        `arg:"env:S3_ACCESS_KEY_ID"`
	S3AccessKeySecret string        `arg:"env:S3_ACCESS_KEY_SECRET"`
	S3ColdStorageURL  string        `arg:"env:S3_COLD_STORAGE_URL"`
	AMQPURL           string        `arg:"env:AMQP_URL" help:"optional RabbitMQ intake"`
	AMQPExchange      string        `arg:"env:AMQP_EXCHANGE" default:"log-records"`
	AMQPQueue         string        `arg:"env:AMQP_QUEUE" default:"blueberry-logs"`
	LogLevel          string        `arg:"env:LOG_LEVEL" default:"info"`
	LogJSON           bool          `arg:"env:LOG_JSON"`
}

func main() {
	arg.MustParse(&args)
	logging.Init(args.LogJSON, logging.ParseLevel(args.LogLevel))

	ctx := context.Background()

	awsCfg := loadAWSConfig(ctx)

	dsns := make([]string, 0, len(args.DSNs))
	for _, dsn := range args.DSNs {
		dsns = append(dsns, resolveSecret(ctx, awsCfg, dsn))
	}

	var failureStorage, coldStorage storage.Backend
	if args.S3URL != "" {
		backend, err := s3storage.NewStorage(storage.Config{Provider: "s3", URL: args.S3URL}, awsCfg)
		if err != nil {
			slog.Error("failed to set up failure storage", "error", err)
		} else {
			failureStorage = backend
		}
	}
	if args.S3ColdStorageURL != "" {
		backend, err := s3storage.NewStorage(storage.Config{Provider: "s3", URL: args.S3ColdStorageURL}, awsCfg)
		if err != nil {
			slog.Error("failed to set up cold storage", "error", err)
		} else {
			coldStorage = backend
		}
	}

	client, err := sentry.NewClient(sentry.Config{
		DSNs:            dsns,
		TLSSkipVerify:   args.TLSSkipVerify,
		Proxy:           args.Proxy,
		Timeout:         args.Timeout,
		BalanceStrategy: args.Balance,
	}, failureStorage, coldStorage)
	if err != nil {
		slog.Error("failed to create sentry client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	forward := func(ctx context.Context, record models.RawLogRecord) {
		event := mapper.ToEvent(record)
		if err := client.SendEvents(ctx, []*models.SentryEvent{event}); err != nil {
			slog.Error("failed to forward event", "error", err)
		}
	}

	if args.AMQPURL != "" {
		consumer := intake.NewAMQPConsumer(intake.AMQPConfig{
			URL:      args.AMQPURL,
			Exchange: args.AMQPExchange,
			Queue:    args.AMQPQueue,
		})
		if err := consumer.Connect(ctx); err != nil {
			slog.Error("failed to connect AMQP intake", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		err := consumer.Consume(ctx, func(record models.RawLogRecord) error {
			forward(ctx, record)
			return nil
		})
		if err != nil {
			slog.Error("failed to start AMQP intake", "error", err)
			os.Exit(1)
		}
	}

	handler := &intake.Handler{Forward: forward}
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/intake", handler)

	server := &http.Server{
		Addr:              args.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", args.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	handler.Drain()
}

func loadAWSConfig(ctx context.Context) awssdk.Config {
	var awsCfg awssdk.Config
	var err error
	if args.S3AccessKeyID != "" && args.S3AccessKeySecret != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(args.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(args.S3AccessKeyID, args.S3AccessKeySecret, ""),
			),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(args.Region))
	}
	if err != nil {
		slog.Error("unable to load AWS config", "error", err)
		os.Exit(1)
	}
	return awsCfg
}

// resolveSecret swaps a Secrets Manager ARN for the DSN it stores; plain
// DSNs pass through.
func resolveSecret(ctx context.Context, awsCfg awssdk.Config, value string) string {
	if !strings.HasPrefix(value, "arn:aws:secretsmanager:") {
		return value
	}
	slog.Info("fetching DSN from AWS Secrets Manager")
	secretMgr := secretsmanager.NewFromConfig(awsCfg)
	secret, err := secretMgr.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(value),
	})
	if err != nil {
		slog.Error("failed to get secret from Secrets Manager", "error", err)
		os.Exit(1)
	}
	return *secret.SecretString
}
