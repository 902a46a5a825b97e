package source

import "context"

// Envelope is the raw record received from a Source. The pipeline validates
// Payload like any HTTP request body.
type Envelope struct {
	ID      string
	Payload []byte
}

// Message represents one unit received from a Source.
type Message interface {
	Data() Envelope
	Fail(ctx context.Context, reason error) error
}

// Sourcer reads messages and acknowledges them in batches.
//
// Sources should ensure that Receive blocks until a message is available or the
// context is canceled.
type Sourcer interface {
	Receive(ctx context.Context) (Message, error)
	AckBatch(ctx context.Context, msgs []Message) error
}
