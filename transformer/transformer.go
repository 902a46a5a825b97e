// Package transformer turns queue envelopes into ingest bodies.
package transformer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"

	"github.com/baldanca/unicorn-api/source"
)

// ErrEmptyPayload is returned for envelopes that carry no body.
var ErrEmptyPayload = errors.New("empty payload")

// Transformer converts a source.Envelope into the JSON body handed to the
// ingestor.
type Transformer interface {
	Transform(ctx context.Context, in source.Envelope) ([]byte, error)
}

// Func adapts a function to Transformer.
type Func func(ctx context.Context, in source.Envelope) ([]byte, error)

func (f Func) Transform(ctx context.Context, in source.Envelope) ([]byte, error) {
	return f(ctx, in)
}

// Raw passes the payload through unchanged.
type Raw struct{}

func (Raw) Transform(ctx context.Context, in source.Envelope) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return in.Payload, nil
}

// SNS unwraps SNS notifications delivered to SQS without raw message
// delivery. Payloads that are not notifications pass through unchanged.
type SNS struct{}

func (SNS) Transform(ctx context.Context, in source.Envelope) ([]byte, error) {
	body, err := Raw{}.Transform(ctx, in)
	if err != nil {
		return nil, err
	}

	var n events.SNSEntity
	if err := json.Unmarshal(body, &n); err != nil || n.Type != "Notification" {
		return body, nil
	}
	if n.Message == "" {
		return nil, ErrEmptyPayload
	}
	return []byte(n.Message), nil
}
