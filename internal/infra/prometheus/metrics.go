package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Application counters scraped via the metrics server.
var (
	ShortensTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "vaultlink_shortens_total",
		Help: "Short links created.",
	})

	ResolvesTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "vaultlink_resolves_total",
		Help: "Short link resolves served.",
	})

	ChunksStoredTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "vaultlink_chunks_stored_total",
		Help: "File chunks accepted by the message transport.",
	})

	UploadBytesTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "vaultlink_upload_bytes_total",
		Help: "Bytes accepted across all uploads.",
	})

	FilesCompletedTotal = promauto.NewCounter(prom.CounterOpts{
		Name: "vaultlink_files_completed_total",
		Help: "Uploads finalized successfully.",
	})
)
