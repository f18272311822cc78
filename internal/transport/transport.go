package transport

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable signals that the transport could not accept a blob in
	// time; the caller may retry the same chunk.
	ErrUnavailable = errors.New("transport unavailable")
	// ErrFetch signals that a previously issued handle could not be resolved.
	ErrFetch = errors.New("transport fetch failed")
	// ErrTooLarge signals a blob above the per-message ceiling.
	ErrTooLarge = errors.New("blob exceeds transport message size")
)

// Handle is the opaque durable reference the transport returns for one
// stored blob. It is serializable so it can be persisted next to the chunk
// row that owns it.
type Handle struct {
	Stream   string `json:"stream"`
	Sequence uint64 `json:"sequence"`
	Length   int64  `json:"length"`
}

// Transport is a durable send/fetch primitive for bounded-size byte blobs.
// Send is durable once it returns without error. Both calls honor the
// context deadline.
type Transport interface {
	Send(ctx context.Context, data []byte) (Handle, error)
	Fetch(ctx context.Context, h Handle) ([]byte, error)
}
