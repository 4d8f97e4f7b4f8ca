// Lambda entrypoint: the forwarder behind a function URL, for pipelines
// that deliver log batches to a Lambda instead of a long-running server.
package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
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

var (
	client    *sentry.Client
	awsConfig awssdk.Config
)

func init() {
	logging.Init(true, logging.ParseLevel(getEnv("LOG_LEVEL", "info")))

	var err error
	region := getEnv("AWS_REGION", "us-east-1")
	if getEnv("S3_ACCESS_KEY_ID", "") != "" && getEnv("S3_ACCESS_KEY_SECRET", "") != "" {
		awsConfig, err = config.LoadDefaultConfig(
			context.TODO(),
			config.WithRegion(region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					getEnv("S3_ACCESS_KEY_ID", ""),
					getEnv("S3_ACCESS_KEY_SECRET", ""),
					"",
				),
			),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(
			context.TODO(),
			config.WithRegion(region),
		)
	}
	if err != nil {
		slog.Error("unable to load AWS config", "error", err)
		os.Exit(1)
	}

	dsns := strings.Split(getEnv("SENTRY_DSNS", ""), ",")
	if len(dsns) == 0 || dsns[0] == "" {
		slog.Error("SENTRY_DSNS is required")
		os.Exit(1)
	}
	for i, dsn := range dsns {
		dsns[i] = resolveSecret(dsn)
	}

	var failureStorage, coldStorage storage.Backend
	if s3URL := getEnv("S3_URL", ""); s3URL != "" {
		failureStorage, err = s3storage.NewStorage(storage.Config{Provider: "s3", URL: s3URL}, awsConfig)
		if err != nil {
			slog.Error("failed to set up failure storage", "error", err)
		}
	}
	if s3ColdURL := getEnv("S3_COLD_STORAGE_URL", ""); s3ColdURL != "" {
		coldStorage, err = s3storage.NewStorage(storage.Config{Provider: "s3", URL: s3ColdURL}, awsConfig)
		if err != nil {
			slog.Error("failed to set up cold storage", "error", err)
		}
	}

	client, err = sentry.NewClient(sentry.Config{
		DSNs:            dsns,
		TLSSkipVerify:   getEnv("SENTRY_TLS_SKIP_VERIFY", "") == "true",
		Proxy:           getEnv("SENTRY_PROXY", ""),
		Timeout:         parseDuration(getEnv("SENTRY_TIMEOUT", "10s")),
		BalanceStrategy: getEnv("SENTRY_BALANCE", "first_available"),
	}, failureStorage, coldStorage)
	if err != nil {
		slog.Error("failed to create sentry client", "error", err)
		os.Exit(1)
	}
}

func main() {
	lambda.Start(handleRequest)
}

func handleRequest(ctx context.Context, request events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return events.LambdaFunctionURLResponse{StatusCode: 400, Body: "bad input: " + err.Error()}, nil
		}
		body = decoded
	}

	records, err := intake.DecodeRecords(body)
	if err != nil {
		return events.LambdaFunctionURLResponse{StatusCode: 400, Body: "bad input: " + err.Error()}, nil
	}

	var wg sync.WaitGroup
	for _, record := range records {
		wg.Add(1)
		go func(rec models.RawLogRecord) {
			defer wg.Done()
			event := mapper.ToEvent(rec)
			if err := client.SendEvents(ctx, []*models.SentryEvent{event}); err != nil {
				slog.Error("failed to forward event", "error", err)
			}
		}(record)
	}
	wg.Wait()

	return events.LambdaFunctionURLResponse{StatusCode: 202, Body: "accepted"}, nil
}

func resolveSecret(value string) string {
	if !strings.HasPrefix(value, "arn:aws:secretsmanager:") {
		return value
	}
	slog.Info("fetching DSN from AWS Secrets Manager")
	secretMgr := secretsmanager.NewFromConfig(awsConfig)
	secret, err := secretMgr.GetSecretValue(context.Background(), &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(value),
	})
	if err != nil {
		slog.Error("failed to get secret from Secrets Manager", "error", err)
		os.Exit(1)
	}
	return *secret.SecretString
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
