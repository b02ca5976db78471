package ingestion_engine

import "context"

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job Job) error
	// Close stops accepting jobs and waits for queued ones to finish.
	Close()
}
