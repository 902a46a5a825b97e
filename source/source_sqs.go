package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/baldanca/unicorn-api/metrics"
)

// ErrClosed is returned when Receive is called after the source has been closed.
var ErrClosed = errors.New("source closed")

type SourceSQSConfig struct {
	WaitTimeSeconds int32
	MaxMessages     int32
	VisibilityTO    int32

	Pollers int
	BufSize int

	// FailVisibilityTimeoutSeconds, when set, is applied to a message whose
	// ingest failed so the queue redelivers it after that delay.
	FailVisibilityTimeoutSeconds *int32

	// Logger receives poll errors. Default: slog.Default().
	Logger *slog.Logger
}

func (c *SourceSQSConfig) validate() error {
	switch {
	case c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20:
		return fmt.Errorf("sqs source: WaitTimeSeconds=%d outside [0,20]", c.WaitTimeSeconds)
	case c.MaxMessages < 1 || c.MaxMessages > 10:
		return fmt.Errorf("sqs source: MaxMessages=%d outside [1,10]", c.MaxMessages)
	case c.VisibilityTO < 0:
		return fmt.Errorf("sqs source: negative VisibilityTO %d", c.VisibilityTO)
	case c.Pollers < 1:
		return fmt.Errorf("sqs source: Pollers=%d, need at least one", c.Pollers)
	case c.BufSize < 1:
		return fmt.Errorf("sqs source: BufSize=%d, need at least one", c.BufSize)
	case c.FailVisibilityTimeoutSeconds != nil && *c.FailVisibilityTimeoutSeconds < 0:
		return fmt.Errorf("sqs source: negative FailVisibilityTimeoutSeconds %d", *c.FailVisibilityTimeoutSeconds)
	}
	return nil
}

// Receive errors back off exponentially between these bounds.
const (
	minPollBackoff = 250 * time.Millisecond
	maxPollBackoff = 10 * time.Second
)

var DefaultSourceSQSConfig = SourceSQSConfig{
	WaitTimeSeconds: 20,
	MaxMessages:     10,
	VisibilityTO:    30,
	Pollers:         1,
	BufSize:         10,
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type SourceSQS struct {
	cfg SourceSQSConfig

	client      sqsAPI
	queueURL    string
	queueURLPtr *string

	bufCh chan *sqstypes.Message

	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger

	wg sync.WaitGroup
}

func NewWithConfig(ctx context.Context, client sqsAPI, queueURL string, cfg SourceSQSConfig) *SourceSQS {
	if client == nil {
		panic("sqs client is required")
	}
	if queueURL == "" {
		panic("queue url is required")
	}
	if err := cfg.validate(); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &SourceSQS{
		cfg:      cfg,
		client:   client,
		queueURL: queueURL,
		bufCh:    make(chan *sqstypes.Message, cfg.BufSize),
		cancel:   cancel,
		logger:   logger,
	}
	s.queueURLPtr = &s.queueURL

	s.startPollers(ctx)
	return s
}

func New(ctx context.Context, client sqsAPI, queueURL string) *SourceSQS {
	return NewWithConfig(ctx, client, queueURL, DefaultSourceSQSConfig)
}

func (s *SourceSQS) startPollers(ctx context.Context) {
	s.wg.Add(s.cfg.Pollers)
	for i := 0; i < s.cfg.Pollers; i++ {
		go func() {
			defer s.wg.Done()
			s.pollLoop(ctx)
		}()
	}
	go func() {
		s.wg.Wait()
		close(s.bufCh)
	}()
}

func (s *SourceSQS) pollLoop(ctx context.Context) {
	backoff := minPollBackoff
	for ctx.Err() == nil {
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.WaitTimeSeconds+5)*time.Second)
		out, err := s.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            s.queueURLPtr,
			MaxNumberOfMessages: s.cfg.MaxMessages,
			WaitTimeSeconds:     s.cfg.WaitTimeSeconds,
			VisibilityTimeout:   s.cfg.VisibilityTO,
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.QueueReceiveErrorsTotal.Inc()
			s.logger.WarnContext(ctx, "sqs receive failed",
				slog.String("queue_url", s.queueURL),
				slog.Duration("retry_in", backoff),
				slog.Any("error", err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = minPollBackoff

		metrics.QueueMessagesTotal.WithLabelValues(metrics.QueueReceived).Add(float64(len(out.Messages)))
		for i := range out.Messages {
			select {
			case s.bufCh <- &out.Messages[i]:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the pollers. Buffered messages are dropped and become visible
// again once their visibility timeout expires.
func (s *SourceSQS) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *SourceSQS) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.bufCh:
		if !ok {
			return nil, ErrClosed
		}
		return &message{src: s, m: m}, nil
	}
}

// AckBatch deletes msgs from the queue in requests of up to ten entries. Entry
// ids are positions within the request, so acking the same message twice in
// one call is safe. Partially failed requests return every failed entry.
func (s *SourceSQS) AckBatch(ctx context.Context, msgs []Message) error {
	const maxEntries = 10

	for start := 0; start < len(msgs); start += maxEntries {
		chunk := msgs[start:min(start+maxEntries, len(msgs))]

		entries := make([]sqstypes.DeleteMessageBatchRequestEntry, len(chunk))
		for j, msg := range chunk {
			m, ok := msg.(*message)
			if !ok || m.src != s {
				return fmt.Errorf("message was not received from this source: %T", msg)
			}
			entries[j] = sqstypes.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(j)),
				ReceiptHandle: m.m.ReceiptHandle,
			}
		}

		out, err := s.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: s.queueURLPtr,
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("sqs delete batch: %w", err)
		}
		metrics.QueueMessagesTotal.WithLabelValues(metrics.QueueDeleted).Add(float64(len(out.Successful)))

		if len(out.Failed) > 0 {
			errs := make([]error, 0, len(out.Failed))
			for _, f := range out.Failed {
				msgID := aws.ToString(f.Id)
				if j, err := strconv.Atoi(msgID); err == nil && j >= 0 && j < len(chunk) {
					msgID = chunk[j].Data().ID
				}
				errs = append(errs, fmt.Errorf("sqs delete failed message_id=%s code=%s: %s",
					msgID, aws.ToString(f.Code), aws.ToString(f.Message)))
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

type message struct {
	src *SourceSQS
	m   *sqstypes.Message
}

func (m *message) Data() Envelope {
	return Envelope{ID: aws.ToString(m.m.MessageId), Payload: []byte(aws.ToString(m.m.Body))}
}

func (m *message) Fail(ctx context.Context, err error) error {
	if m.src.cfg.FailVisibilityTimeoutSeconds == nil {
		return nil
	}
	_, callErr := m.src.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          m.src.queueURLPtr,
		ReceiptHandle:     m.m.ReceiptHandle,
		VisibilityTimeout: *m.src.cfg.FailVisibilityTimeoutSeconds,
	})
	if callErr != nil && !errors.Is(callErr, context.Canceled) && !errors.Is(callErr, context.DeadlineExceeded) {
		return fmt.Errorf("sqs change visibility message_id=%s: %w", aws.ToString(m.m.MessageId), callErr)
	}
	metrics.QueueMessagesTotal.WithLabelValues(metrics.QueueReleased).Inc()
	return nil
}
