package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/baldanca/unicorn-api/metrics"
	"github.com/baldanca/unicorn-api/payload"
	"github.com/baldanca/unicorn-api/source"
)

// Consume ingests messages from src one at a time until ctx is canceled or
// the source is closed.
//
// Each envelope passes through the configured transformer first; envelopes it
// rejects are acknowledged and dropped. Stored and invalid messages are acknowledged; an invalid record can never
// succeed. Messages whose write failed are reported through Fail and left for
// the queue to redeliver. Acknowledgement errors stop the loop.
func (i *Ingestor) Consume(ctx context.Context, src source.Sourcer) error {
	if src == nil {
		return fmt.Errorf("source is nil")
	}

	for {
		msg, err := src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, source.ErrClosed) {
				return nil
			}
			return err
		}

		env := msg.Data()
		body, err := i.transformer.Transform(ctx, env)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IngestsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
			i.logger.WarnContext(ctx, "dropping malformed message",
				slog.String("message_id", env.ID),
				slog.Any("error", err),
			)
			if err := src.AckBatch(ctx, []source.Message{msg}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ack message %s: %w", env.ID, err)
			}
			continue
		}

		res, err := i.Ingest(ctx, body)
		switch {
		case err == nil:
			i.logger.DebugContext(ctx, "message stored",
				slog.String("message_id", env.ID),
				slog.String("key", res.Outcome.Key),
			)
		case isValidation(err):
			i.logger.WarnContext(ctx, "dropping invalid message",
				slog.String("message_id", env.ID),
				slog.Any("error", err),
			)
		default:
			if ctx.Err() != nil {
				return nil
			}
			if ferr := msg.Fail(ctx, err); ferr != nil {
				i.logger.WarnContext(ctx, "failed to release message",
					slog.String("message_id", env.ID),
					slog.Any("error", ferr),
				)
			}
			continue
		}

		if err := src.AckBatch(ctx, []source.Message{msg}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ack message %s: %w", env.ID, err)
		}
	}
}

func isValidation(err error) bool {
	_, ok := payload.AsValidationError(err)
	return ok
}
