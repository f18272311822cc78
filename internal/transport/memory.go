package transport

import (
	"context"
	"sync"
)

// Memory is an in-process Transport keeping blobs in a map. It backs the
// service tests and any deployment that does not need durability.
type Memory struct {
	mu   sync.Mutex
	next uint64
	data map[uint64][]byte

	// SendErr and FetchErr, when set, are returned verbatim to simulate a
	// failing transport.
	SendErr  error
	FetchErr error
}

// NewMemory returns an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{data: make(map[uint64][]byte)}
}

func (m *Memory) Send(ctx context.Context, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, ErrUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return Handle{}, m.SendErr
	}

	m.next++
	buf := make([]byte, len(data))
	copy(buf, data)
	m.data[m.next] = buf

	return Handle{Stream: "memory", Sequence: m.next, Length: int64(len(data))}, nil
}

func (m *Memory) Fetch(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrFetch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FetchErr != nil {
		return nil, m.FetchErr
	}

	buf, ok := m.data[h.Sequence]
	if !ok || int64(len(buf)) != h.Length {
		return nil, ErrFetch
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}
