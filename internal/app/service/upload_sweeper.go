package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/internal/app/repository"
)

// UploadSweeper periodically deletes incomplete uploads that have seen no
// chunk activity within the TTL. Abandoned uploads are a housekeeping
// concern; the core never reads them back anyway.
type UploadSweeper struct {
	logger   *zap.Logger
	files    repository.FileRepository
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
}

// NewUploadSweeper creates a sweeper with the given abandonment TTL.
func NewUploadSweeper(logger *zap.Logger, files repository.FileRepository, ttl time.Duration) *UploadSweeper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UploadSweeper{
		logger:   logger,
		files:    files,
		ttl:      ttl,
		interval: 10 * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *UploadSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *UploadSweeper) Stop() {
	close(s.stopChan)
}

func (s *UploadSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("upload sweeper stopped")
			return
		}
	}
}

func (s *UploadSweeper) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.ttl)

	swept, err := s.files.DeleteStaleIncomplete(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to sweep stale uploads", zap.Error(err))
		return
	}

	if swept > 0 {
		s.logger.Info("swept stale incomplete uploads",
			zap.Int64("count", swept),
			zap.Time("cutoff", cutoff),
		)
	}
}
