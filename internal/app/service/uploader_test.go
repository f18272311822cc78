package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mraprguild/vaultlink/config"
	"github.com/mraprguild/vaultlink/internal/transport"
)

const testChunkSize = int64(1) << 20

func newTestUploader(files *fakeFileRepo, tr transport.Transport) *Uploader {
	return NewUploader(UploaderDeps{
		Files:     files,
		Users:     newFakeUserRepo(),
		Transport: tr,
		Locks:     NewMemoryLocker(),
		Config: config.StorageConfig{
			MaxFileSizeBytes: config.DefaultMaxFileSize,
			ChunkSizeBytes:   testChunkSize,
		},
	})
}

// payload returns size deterministic, non-repeating-ish bytes.
func payload(size int) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(i*31 + i>>8 + 7)
	}
	return out
}

func TestUploader_BeginRejectsBadSizes(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	for _, size := range []int64{0, -1, config.DefaultMaxFileSize + 1} {
		_, err := u.Begin(ctx, 1, "big.bin", size)
		if !errors.Is(err, ErrSizeExceeded) {
			t.Fatalf("Begin(size=%d): expected ErrSizeExceeded, got %v", size, err)
		}
	}
	if files.creats != 0 {
		t.Fatalf("rejected Begin created %d rows, want 0", files.creats)
	}
}

func TestUploader_ChunkedRoundTrip(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	u := newTestUploader(files, tr)
	ctx := context.Background()

	// 2.5MB declared, 1MB chunks: expect 1MB + 1MB + 0.5MB.
	data := payload(int(testChunkSize*2 + testChunkSize/2))
	file, err := u.Begin(ctx, 1, "video.mp4", int64(len(data)))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	index := 0
	for off := 0; off < len(data); off += int(testChunkSize) {
		end := off + int(testChunkSize)
		if end > len(data) {
			end = len(data)
		}
		got, err := u.Append(ctx, file.ID, index, data[off:end])
		if err != nil {
			t.Fatalf("Append chunk %d returned error: %v", index, err)
		}
		if got != index {
			t.Fatalf("Append returned index %d, want %d", got, index)
		}
		index++
	}

	done, err := u.Finalize(ctx, file.ID)
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if !done.Complete {
		t.Fatal("file not marked complete after finalize")
	}
	if len(done.Chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(done.Chunks))
	}
	if done.Chunks[2].Length != testChunkSize/2 {
		t.Fatalf("last chunk length = %d, want %d", done.Chunks[2].Length, testChunkSize/2)
	}

	r := NewRetriever(files, tr, nil)
	reader, err := r.OpenForRead(ctx, file.ID)
	if err != nil {
		t.Fatalf("OpenForRead returned error: %v", err)
	}
	back, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("reconstructed stream differs from original (%d vs %d bytes)", len(back), len(data))
	}
	if file.Category != "video" {
		t.Fatalf("category = %q, want video", file.Category)
	}
}

func TestUploader_AppendIdempotentRetry(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	chunk := payload(1024)
	file, err := u.Begin(ctx, 1, "notes.txt", int64(len(chunk)))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	if _, err := u.Append(ctx, file.ID, 0, chunk); err != nil {
		t.Fatalf("first Append returned error: %v", err)
	}
	// Retrying the same index with the same bytes replaces, not duplicates.
	if _, err := u.Append(ctx, file.ID, 0, chunk); err != nil {
		t.Fatalf("retried Append returned error: %v", err)
	}

	done, err := u.Finalize(ctx, file.ID)
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if len(done.Chunks) != 1 {
		t.Fatalf("chunk count = %d after retry, want 1", len(done.Chunks))
	}
}

func TestUploader_AppendOutOfOrder(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", 4096)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	_, err = u.Append(ctx, file.ID, 2, payload(512))
	if !errors.Is(err, ErrConcurrentUpload) {
		t.Fatalf("expected ErrConcurrentUpload for skipped index, got %v", err)
	}
}

func TestUploader_AppendExceedsDeclaredSize(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", 1000)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	_, err = u.Append(ctx, file.ID, 0, payload(1001))
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded, got %v", err)
	}
}

func TestUploader_AppendOverChunkCeiling(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", testChunkSize*4)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	_, err = u.Append(ctx, file.ID, 0, payload(int(testChunkSize)+1))
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded for oversized chunk, got %v", err)
	}
}

func TestUploader_FinalizeIncomplete(t *testing.T) {
	files := newFakeFileRepo()
	u := newTestUploader(files, transport.NewMemory())
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", 2048)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if _, err := u.Append(ctx, file.ID, 0, payload(1024)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	_, err = u.Finalize(ctx, file.ID)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestUploader_TransportFailureIsRetryable(t *testing.T) {
	files := newFakeFileRepo()
	tr := transport.NewMemory()
	u := newTestUploader(files, tr)
	ctx := context.Background()

	chunk := payload(512)
	file, err := u.Begin(ctx, 1, "a.bin", int64(len(chunk)))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	tr.SendErr = transport.ErrUnavailable
	_, err = u.Append(ctx, file.ID, 0, chunk)
	if !errors.Is(err, transport.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// The failed append stored nothing; the same index retries cleanly.
	tr.SendErr = nil
	if _, err := u.Append(ctx, file.ID, 0, chunk); err != nil {
		t.Fatalf("retry after transport failure returned error: %v", err)
	}
	if _, err := u.Finalize(ctx, file.ID); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
}

func TestUploader_AppendWhileLocked(t *testing.T) {
	files := newFakeFileRepo()
	locks := NewMemoryLocker()
	u := NewUploader(UploaderDeps{
		Files:     files,
		Users:     newFakeUserRepo(),
		Transport: transport.NewMemory(),
		Locks:     locks,
		Config:    config.StorageConfig{ChunkSizeBytes: testChunkSize},
	})
	ctx := context.Background()

	file, err := u.Begin(ctx, 1, "a.bin", 1024)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}

	release, ok, err := locks.TryLock(ctx, "upload:"+file.ID, uploadLockTTL)
	if err != nil || !ok {
		t.Fatalf("test could not take the lock: ok=%v err=%v", ok, err)
	}
	defer release()

	_, err = u.Append(ctx, file.ID, 0, payload(256))
	if !errors.Is(err, ErrConcurrentUpload) {
		t.Fatalf("expected ErrConcurrentUpload while locked, got %v", err)
	}
}

func TestUploader_AppendToUnknownFile(t *testing.T) {
	u := newTestUploader(newFakeFileRepo(), transport.NewMemory())

	_, err := u.Append(context.Background(), "nope", 0, payload(16))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":    "image",
		"movie.mkv":    "video",
		"song.flac":    "audio",
		"report.pdf":   "document",
		"backup.tar":   "archive",
		"mystery.dat":  "file",
		"no_extension": "file",
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:              "0B",
		512:            "512.0B",
		1024:           "1.0KB",
		int64(5) << 20: "5.0MB",
		int64(4) << 30: "4.0GB",
	}
	for n, want := range cases {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
