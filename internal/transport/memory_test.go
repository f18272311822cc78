package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	payload := []byte("chunk payload")
	h, err := m.Send(ctx, payload)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if h.Length != int64(len(payload)) {
		t.Fatalf("handle length = %d, want %d", h.Length, len(payload))
	}

	got, err := m.Fetch(ctx, h)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Fetch returned %q, want %q", got, payload)
	}
}

func TestMemory_FetchUnknownHandle(t *testing.T) {
	m := NewMemory()

	_, err := m.Fetch(context.Background(), Handle{Stream: "memory", Sequence: 42, Length: 1})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestMemory_SendIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	payload := []byte{1, 2, 3}
	h, err := m.Send(ctx, payload)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	// Mutating the caller's slice must not change the stored blob.
	payload[0] = 9
	got, err := m.Fetch(ctx, h)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got[0] != 1 {
		t.Fatalf("stored blob was mutated through caller slice")
	}
}
