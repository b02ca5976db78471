package ingestion_engine

import (
	"context"
	"time"
)

const defaultJobTimeout = 5 * time.Minute

// IngestConfig tunes the storage pipeline.
//
// Bucket:           blob storage bucket; empty disables storing originals.
// EmbedBatchSize:   chunks per embedding request (e.g., 32).
// EmbedParallelism: embedding requests in flight for one document.
// JobTimeout:       wall-clock budget for one queued job.
type IngestConfig struct {
	Bucket           string
	EmbedBatchSize   int
	EmbedParallelism int
	JobTimeout       time.Duration
}

// Job is one queued ingestion. Load supplies the file bytes when a worker
// picks the job up; Done, if set, receives the outcome.
type Job struct {
	Request StoreRequest
	Load    func(ctx context.Context) ([]byte, error)
	Done    func(res *StoreResult, err error)
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := IngestConfig{}
	if c != nil {
		out = *c
	}
	if out.EmbedBatchSize <= 0 {
		out.EmbedBatchSize = 32
	}
	if out.EmbedParallelism <= 0 {
		out.EmbedParallelism = 4
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = defaultJobTimeout
	}
	return &out
}
