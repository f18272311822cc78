package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/transport"
)

// storedFile uploads data in chunkSize pieces and finalizes it.
func storedFile(t *testing.T, files *fakeFileRepo, tr transport.Transport, data []byte, chunkSize int) *model.FileObject {
	t.Helper()

	u := newTestUploader(files, tr)
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "blob.bin", int64(len(data)))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	index := 0
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := u.Append(ctx, file.ID, index, data[off:end]); err != nil {
			t.Fatalf("Append chunk %d returned error: %v", index, err)
		}
		index++
	}

	done, err := u.Finalize(ctx, file.ID)
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	return done
}

func TestRetriever_NotFound(t *testing.T) {
	r := NewRetriever(newFakeFileRepo(), transport.NewMemory(), nil)

	_, err := r.OpenForRead(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetriever_IncompleteNotReadable(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	u := newTestUploader(files, tr)
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", 2048)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if _, err := u.Append(ctx, file.ID, 0, payload(1024)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	r := NewRetriever(files, tr, nil)
	_, err = r.OpenForRead(ctx, file.ID)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestRetriever_NextChunkSequence(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	data := payload(2500)
	file := storedFile(t, files, tr, data, 1000)

	r := NewRetriever(files, tr, nil)
	reader, err := r.OpenForRead(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("OpenForRead returned error: %v", err)
	}
	if reader.ChunkCount() != 3 || reader.Size() != 2500 {
		t.Fatalf("reader reports %d chunks / %d bytes", reader.ChunkCount(), reader.Size())
	}

	var assembled []byte
	for {
		chunk, err := reader.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("NextChunk returned error: %v", err)
		}
		assembled = append(assembled, chunk...)
	}
	if !bytes.Equal(assembled, data) {
		t.Fatal("chunk-by-chunk assembly differs from original")
	}
}

func TestRetriever_CorruptChunkLayout(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	file := storedFile(t, files, tr, payload(2000), 1000)

	// Corrupt the stored metadata: shrink one chunk so the sum no longer
	// matches the declared size.
	files.mu.Lock()
	files.files[file.ID].Chunks[1].Length = 999
	files.mu.Unlock()

	r := NewRetriever(files, tr, nil)
	_, err := r.OpenForRead(context.Background(), file.ID)
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
}

func TestRetriever_GapInOffsets(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	file := storedFile(t, files, tr, payload(2000), 1000)

	files.mu.Lock()
	files.files[file.ID].Chunks[1].Offset = 1500
	files.mu.Unlock()

	r := NewRetriever(files, tr, nil)
	_, err := r.OpenForRead(context.Background(), file.ID)
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile for offset gap, got %v", err)
	}
}

func TestRetriever_FetchErrorAbortsRead(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	file := storedFile(t, files, tr, payload(2000), 1000)

	r := NewRetriever(files, tr, nil)
	reader, err := r.OpenForRead(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("OpenForRead returned error: %v", err)
	}

	tr.FetchErr = transport.ErrFetch
	_, err = io.ReadAll(reader)
	if !errors.Is(err, transport.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
