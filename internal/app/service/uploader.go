package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/config"
	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/app/repository"
	infraprom "github.com/mraprguild/vaultlink/internal/infra/prometheus"
	"github.com/mraprguild/vaultlink/internal/transport"
)

const uploadLockTTL = 30 * time.Second

// Uploader runs the chunked upload lifecycle: begin, append, finalize.
// Chunk bytes live on the message transport; only handles are persisted.
type Uploader struct {
	files    repository.FileRepository
	users    repository.UserRepository
	settings repository.SettingRepository
	tr       transport.Transport
	locks    Locker
	cfg      config.StorageConfig
	logger   *zap.Logger
}

// UploaderDeps groups what the uploader needs. Settings may be nil when no
// runtime overrides are wanted.
type UploaderDeps struct {
	Files     repository.FileRepository
	Users     repository.UserRepository
	Settings  repository.SettingRepository
	Transport transport.Transport
	Locks     Locker
	Config    config.StorageConfig
	Logger    *zap.Logger
}

// NewUploader returns an Uploader wired to the given dependencies.
func NewUploader(deps UploaderDeps) *Uploader {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = config.DefaultMaxFileSize
	}
	if cfg.ChunkSizeBytes <= 0 {
		cfg.ChunkSizeBytes = config.DefaultChunkSize
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewMemoryLocker()
	}

	return &Uploader{
		files:    deps.Files,
		users:    deps.Users,
		settings: deps.Settings,
		tr:       deps.Transport,
		locks:    locks,
		cfg:      cfg,
		logger:   logger,
	}
}

// Begin creates the file record before any chunk lands, so a crashed
// upload is visible and resumable. Fails with ErrSizeExceeded when the
// declared size is non-positive or over the limit; no row is created then.
func (u *Uploader) Begin(ctx context.Context, ownerID int64, name string, declaredSize int64) (*model.FileObject, error) {
	limit := u.maxFileSize(ctx)
	if declaredSize <= 0 || declaredSize > limit {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrSizeExceeded, declaredSize, limit)
	}

	if err := u.ensureActiveUser(ctx, ownerID); err != nil {
		return nil, err
	}

	file := &model.FileObject{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         name,
		Category:     Classify(name),
		DeclaredSize: declaredSize,
	}

	if err := u.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("uploader: create file: %w", err)
	}

	u.logger.Info("upload started",
		zap.String("file_id", file.ID),
		zap.Int64("owner_id", ownerID),
		zap.String("name", name),
		zap.Int64("declared_size", declaredSize))

	return file, nil
}

// Append stores one chunk. It is idempotent per index: re-appending at the
// last stored index replaces that chunk, so a caller may safely retry after
// a transport failure. Appends are serialized per file id; a held lock or
// an out-of-order index fails with ErrConcurrentUpload.
func (u *Uploader) Append(ctx context.Context, fileID string, index int, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("uploader: empty chunk for file %s", fileID)
	}
	chunkLimit := u.chunkSize(ctx)
	if int64(len(data)) > chunkLimit {
		return 0, fmt.Errorf("%w: chunk of %d bytes, limit %d", ErrSizeExceeded, len(data), chunkLimit)
	}

	release, ok, err := u.locks.TryLock(ctx, "upload:"+fileID, uploadLockTTL)
	if err != nil {
		return 0, fmt.Errorf("uploader: acquire lock: %w", err)
	}
	if !ok {
		return 0, ErrConcurrentUpload
	}
	defer release()

	file, err := u.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("uploader: load file: %w", err)
	}
	if file.Complete {
		return 0, fmt.Errorf("uploader: file %s is finalized: %w", fileID, ErrConcurrentUpload)
	}

	offset, err := appendOffset(file, index)
	if err != nil {
		return 0, err
	}
	if offset+int64(len(data)) > file.DeclaredSize {
		return 0, fmt.Errorf("%w: chunk %d would store %d of %d declared bytes",
			ErrSizeExceeded, index, offset+int64(len(data)), file.DeclaredSize)
	}

	handle, err := u.tr.Send(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("uploader: store chunk %d: %w", index, err)
	}

	chunk := &model.FileChunk{
		FileID:     fileID,
		ChunkIndex: index,
		Offset:     offset,
		Length:     handle.Length,
		Stream:     handle.Stream,
		Sequence:   handle.Sequence,
	}
	if err := u.files.UpsertChunk(ctx, chunk); err != nil {
		return 0, fmt.Errorf("uploader: persist chunk %d: %w", index, err)
	}

	infraprom.ChunksStoredTotal.Inc()
	infraprom.UploadBytesTotal.Add(float64(len(data)))

	return index, nil
}

// appendOffset enforces the next-expected-index invariant: a chunk lands
// either right after the stored ones or on top of the last one (retry).
func appendOffset(file *model.FileObject, index int) (int64, error) {
	n := len(file.Chunks)
	switch {
	case index == n:
		return file.StoredBytes(), nil
	case n > 0 && index == n-1:
		return file.Chunks[n-1].Offset, nil
	default:
		return 0, fmt.Errorf("%w: chunk index %d, expected %d", ErrConcurrentUpload, index, n)
	}
}

// Finalize flips the file to complete once the stored chunks add up to
// exactly the declared size. Any mismatch, short or long, fails with
// ErrIncomplete. Finalizing an already complete file is a no-op.
func (u *Uploader) Finalize(ctx context.Context, fileID string) (*model.FileObject, error) {
	release, ok, err := u.locks.TryLock(ctx, "upload:"+fileID, uploadLockTTL)
	if err != nil {
		return nil, fmt.Errorf("uploader: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentUpload
	}
	defer release()

	file, err := u.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("uploader: load file: %w", err)
	}
	if file.Complete {
		return file, nil
	}

	stored := file.StoredBytes()
	if stored != file.DeclaredSize {
		return nil, fmt.Errorf("%w: stored %d of %d declared bytes", ErrIncomplete, stored, file.DeclaredSize)
	}

	if err := u.files.MarkComplete(ctx, fileID); err != nil {
		return nil, fmt.Errorf("uploader: mark complete: %w", err)
	}
	file.Complete = true

	if err := u.users.IncrementFiles(ctx, file.OwnerID); err != nil {
		u.logger.Warn("failed to bump user file counter",
			zap.Int64("owner_id", file.OwnerID), zap.Error(err))
	}

	infraprom.FilesCompletedTotal.Inc()
	u.logger.Info("upload finalized",
		zap.String("file_id", fileID),
		zap.Int("chunks", len(file.Chunks)),
		zap.String("size", FormatSize(file.DeclaredSize)))

	return file, nil
}

// ListFiles returns the owner's newest completed files.
func (u *Uploader) ListFiles(ctx context.Context, ownerID int64, limit int) ([]model.FileObject, error) {
	files, err := u.files.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("uploader: list files: %w", err)
	}
	return files, nil
}

func (u *Uploader) maxFileSize(ctx context.Context) int64 {
	if u.settings != nil {
		if v, err := u.settings.Get(ctx, model.SettingMaxFileSize); err == nil {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return u.cfg.MaxFileSizeBytes
}

func (u *Uploader) chunkSize(ctx context.Context) int64 {
	if u.settings != nil {
		if v, err := u.settings.Get(ctx, model.SettingChunkSize); err == nil {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return u.cfg.ChunkSizeBytes
}

func (u *Uploader) ensureActiveUser(ctx context.Context, ownerID int64) error {
	user, err := u.users.Get(ctx, ownerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return u.users.Ensure(ctx, &model.User{ID: ownerID})
	}
	if err != nil {
		return fmt.Errorf("uploader: load user: %w", err)
	}
	if user.Banned {
		return ErrUserBanned
	}
	return nil
}

// Classify buckets a filename into a coarse category by extension.
func Classify(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return model.CategoryImage
	case ".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm":
		return model.CategoryVideo
	case ".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma":
		return model.CategoryAudio
	case ".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt":
		return model.CategoryDocument
	case ".zip", ".rar", ".7z", ".tar", ".gz":
		return model.CategoryArchive
	default:
		return model.CategoryFile
	}
}

// FormatSize renders a byte count in human-readable form.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(n)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.1f%s", value, units[i])
}
