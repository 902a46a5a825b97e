package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/baldanca/unicorn-api/encoder"
	"github.com/baldanca/unicorn-api/keys"
	"github.com/baldanca/unicorn-api/metrics"
	"github.com/baldanca/unicorn-api/payload"
	"github.com/baldanca/unicorn-api/sink"
	"github.com/baldanca/unicorn-api/transformer"
)

// Result describes a stored record.
type Result struct {
	Payload payload.Unicorn
	Outcome sink.Outcome
}

// Ingestor runs one record through validation, encoding and a single object
// store write. It holds no per-request state and is safe for concurrent use.
type Ingestor struct {
	encoder encoder.Encoder[payload.Unicorn]
	sink    sink.Sinkr
	keyFunc keys.KeyFunc
	logger  *slog.Logger

	transformer transformer.Transformer
}

type Option func(*Ingestor)

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithTransformer sets how Consume extracts a body from queue envelopes.
// Default: transformer.Raw.
func WithTransformer(t transformer.Transformer) Option {
	return func(i *Ingestor) {
		if t != nil {
			i.transformer = t
		}
	}
}

func NewIngestor(
	encoder encoder.Encoder[payload.Unicorn],
	sink sink.Sinkr,
	keyFunc keys.KeyFunc,
	opts ...Option,
) (*Ingestor, error) {
	if encoder == nil {
		return nil, fmt.Errorf("encoder is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if keyFunc == nil {
		return nil, fmt.Errorf("keyFunc is nil")
	}

	i := &Ingestor{
		encoder: encoder,
		sink:    sink,
		keyFunc: keyFunc,
		logger:  slog.Default(),

		transformer: transformer.Raw{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Ingest decodes and validates a JSON body, then stores it. A
// *payload.ValidationError means nothing was written.
func (i *Ingestor) Ingest(ctx context.Context, body []byte) (Result, error) {
	u, err := payload.Decode(body)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return Result{}, err
	}
	return i.Store(ctx, u)
}

// IngestFields is Ingest for an already decoded JSON object.
func (i *Ingestor) IngestFields(ctx context.Context, fields map[string]any) (Result, error) {
	u, err := payload.Validate(fields)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return Result{}, err
	}
	return i.Store(ctx, u)
}

// Store encodes a validated record and writes it exactly once.
func (i *Ingestor) Store(ctx context.Context, u payload.Unicorn) (Result, error) {
	data, err := i.encoder.Encode(ctx, u)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues(metrics.ResultEncodeError).Inc()
		return Result{}, fmt.Errorf("encode record: %w", err)
	}

	key, err := i.keyFunc(ctx, data)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues(metrics.ResultEncodeError).Inc()
		return Result{}, fmt.Errorf("build key: %w", err)
	}

	began := time.Now()
	out, err := i.sink.Write(ctx, sink.WriteRequest{
		Key:         key,
		Data:        data,
		ContentType: i.encoder.ContentType(),
	})
	metrics.StorageWriteDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.IngestsTotal.WithLabelValues(metrics.ResultStorageError).Inc()
		var se *sink.StorageError
		if errors.As(err, &se) {
			i.logger.ErrorContext(ctx, "object store write failed",
				slog.String("bucket", se.Bucket),
				slog.String("key", se.Key),
				slog.String("code", se.Code),
				slog.Any("error", se.Err),
			)
			return Result{}, err
		}
		i.logger.ErrorContext(ctx, "object store write failed", slog.String("key", key), slog.Any("error", err))
		return Result{}, &sink.StorageError{Key: key, Err: err}
	}

	metrics.IngestsTotal.WithLabelValues(metrics.ResultStored).Inc()
	metrics.StoredBytesTotal.Add(float64(len(data)))
	i.logger.DebugContext(ctx, "record stored",
		slog.String("bucket", out.Bucket),
		slog.String("key", out.Key),
		slog.String("etag", out.ETag),
	)
	return Result{Payload: u, Outcome: out}, nil
}
