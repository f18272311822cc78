package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	chunkStreamName    = "CHUNKS"
	chunkStreamSubject = "chunks.blob"

	defaultSendTimeout = 10 * time.Second
)

// JetStreamTransport stores blobs as messages on a NATS JetStream stream.
// The handle for a stored blob is its stream sequence number, which
// JetStream keeps stable for the lifetime of the message.
type JetStreamTransport struct {
	js          nats.JetStreamContext
	maxMsgSize  int64
	sendTimeout time.Duration
}

// JetStreamOptions tunes the chunk stream.
type JetStreamOptions struct {
	// MaxMsgSize bounds one blob; sends above it fail with ErrTooLarge.
	MaxMsgSize int64
	// SendTimeout caps one Send round trip when the caller's context has
	// no earlier deadline.
	SendTimeout time.Duration
}

// NewJetStream creates the chunk stream if it does not exist and returns a
// transport bound to it.
func NewJetStream(js nats.JetStreamContext, opts JetStreamOptions) (*JetStreamTransport, error) {
	if opts.MaxMsgSize <= 0 {
		opts.MaxMsgSize = 1 << 20
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	if _, err := js.StreamInfo(chunkStreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       chunkStreamName,
			Subjects:   []string{chunkStreamSubject},
			Storage:    nats.FileStorage,
			Retention:  nats.LimitsPolicy,
			MaxMsgSize: int32(opts.MaxMsgSize),
		})
		if err != nil {
			return nil, fmt.Errorf("transport: create chunk stream: %w", err)
		}
	}

	return &JetStreamTransport{
		js:          js,
		maxMsgSize:  opts.MaxMsgSize,
		sendTimeout: opts.SendTimeout,
	}, nil
}

// Send publishes one blob and waits for the stream acknowledgement. The
// returned handle is durable once Send returns nil.
func (t *JetStreamTransport) Send(ctx context.Context, data []byte) (Handle, error) {
	if int64(len(data)) > t.maxMsgSize {
		return Handle{}, fmt.Errorf("transport: %d bytes: %w", len(data), ErrTooLarge)
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	ack, err := t.js.Publish(chunkStreamSubject, data, nats.Context(sendCtx))
	if err != nil {
		return Handle{}, fmt.Errorf("transport: publish chunk: %w: %w", ErrUnavailable, err)
	}

	return Handle{
		Stream:   ack.Stream,
		Sequence: ack.Sequence,
		Length:   int64(len(data)),
	}, nil
}

// Fetch reads the message behind a handle. The stored length is checked
// against the message payload so a truncated or replaced message surfaces
// as a fetch error rather than silent corruption.
func (t *JetStreamTransport) Fetch(ctx context.Context, h Handle) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	msg, err := t.js.GetMsg(h.Stream, h.Sequence, nats.Context(fetchCtx))
	if err != nil {
		return nil, fmt.Errorf("transport: get msg %s/%d: %w: %w", h.Stream, h.Sequence, ErrFetch, err)
	}

	if int64(len(msg.Data)) != h.Length {
		return nil, fmt.Errorf("transport: msg %s/%d holds %d bytes, handle says %d: %w",
			h.Stream, h.Sequence, len(msg.Data), h.Length, ErrFetch)
	}

	return msg.Data, nil
}
