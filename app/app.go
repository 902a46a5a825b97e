// Package app wires the configured components into a runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/baldanca/unicorn-api/api"
	"github.com/baldanca/unicorn-api/config"
	"github.com/baldanca/unicorn-api/encoder"
	"github.com/baldanca/unicorn-api/ingestor"
	"github.com/baldanca/unicorn-api/keys"
	"github.com/baldanca/unicorn-api/lookup"
	"github.com/baldanca/unicorn-api/payload"
	"github.com/baldanca/unicorn-api/sink"
	"github.com/baldanca/unicorn-api/source"
	"github.com/baldanca/unicorn-api/transformer"
)

// ObjectPutter is the part of the S3 client the service writes through.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Sink     *sink.S3
	Ingestor *ingestor.Ingestor
	Handler  *api.Handler

	aws aws.Config
}

// New loads AWS credentials from the default provider chain and builds the
// service from cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	a, err := Build(cfg, logger, NewS3Client(awsCfg, cfg))
	if err != nil {
		return nil, err
	}
	a.aws = awsCfg
	return a, nil
}

// NewS3Client builds an S3 client honoring S3_ENDPOINT and S3_USE_PATH_STYLE.
func NewS3Client(awsCfg aws.Config, cfg config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
}

// Build assembles the service around an existing S3 client.
func Build(cfg config.Config, logger *slog.Logger, client ObjectPutter) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	enc, err := encoder.New[payload.Unicorn](cfg.StorageFormat, cfg.ParquetCompression)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "STORAGE_FORMAT", Reason: "cannot build encoder", Err: err}
	}

	keyFunc, err := keys.FromStrategy(cfg.KeyStrategy, cfg.FixedKey, enc.FileExtension())
	if err != nil {
		return nil, &config.ConfigurationError{Field: "KEY_STRATEGY", Reason: "cannot build key function", Err: err}
	}

	var sinkOpts []sink.Option
	if cfg.ObjectACL != "" {
		sinkOpts = append(sinkOpts, sink.WithACL(types.ObjectCannedACL(cfg.ObjectACL)))
	}
	sk := sink.New(client, cfg.BucketName, cfg.KeyPrefix, sinkOpts...)

	ingOpts := []ingestor.Option{ingestor.WithLogger(logger)}
	if cfg.SQS.UnwrapSNS {
		ingOpts = append(ingOpts, ingestor.WithTransformer(transformer.SNS{}))
	}
	ing, err := ingestor.NewIngestor(enc, sk, keyFunc, ingOpts...)
	if err != nil {
		return nil, fmt.Errorf("build ingestor: %w", err)
	}

	h := api.NewHandler(ing, lookup.Unimplemented{}, api.HandlerOptions{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Metrics:      true,
		Logger:       logger,
	})

	logger.Info("service configured",
		"bucket", sk.Bucket(),
		"key_strategy", cfg.KeyStrategy,
		"storage_format", cfg.StorageFormat,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Sink:     sk,
		Ingestor: ing,
		Handler:  h,
	}, nil
}

// SourceConfig maps the SQS settings onto the source configuration.
func SourceConfig(cfg config.SQSConfig) source.SourceSQSConfig {
	sc := source.DefaultSourceSQSConfig
	sc.WaitTimeSeconds = cfg.WaitTimeSeconds
	sc.MaxMessages = cfg.MaxMessages
	sc.VisibilityTO = cfg.VisibilityTimeoutSeconds
	sc.BufSize = int(cfg.MaxMessages)
	if cfg.FailVisibilitySeconds >= 0 {
		v := cfg.FailVisibilitySeconds
		sc.FailVisibilityTimeoutSeconds = &v
	}
	return sc
}

// NewSQSSource starts polling the configured queue. The caller must Close it.
func (a *App) NewSQSSource(ctx context.Context) (*source.SourceSQS, error) {
	if err := a.Config.RequireQueue(); err != nil {
		return nil, err
	}
	sc := SourceConfig(a.Config.SQS)
	sc.Logger = a.Logger
	return source.NewWithConfig(ctx, sqs.NewFromConfig(a.aws), a.Config.SQS.QueueURL, sc), nil
}
