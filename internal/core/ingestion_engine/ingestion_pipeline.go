package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/logging"
)

// ErrQueueClosed is returned by Enqueue after Close, or once the workers'
// context has ended.
var ErrQueueClosed = errors.New("ingestion queue closed")

// DocumentIngestor runs queued ingestion jobs on a fixed set of workers.
// Every accepted job gets exactly one Done call.
type DocumentIngestor struct {
	storage Storer
	cfg     *IngestConfig
	jobs    chan Job

	// stop is closed once no new jobs are accepted.
	stop      chan struct{}
	mu        sync.Mutex
	closed    bool
	senders   sync.WaitGroup
	closeJobs sync.Once
	wg        sync.WaitGroup
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(storage Storer, cfg *IngestConfig) *DocumentIngestor {
	return &DocumentIngestor{
		storage: storage,
		cfg:     cfg.withDefaults(),
		jobs:    make(chan Job, 64),
		stop:    make(chan struct{}),
	}
}

// Start launches numWorkers goroutines reading from the jobs channel. When
// ctx ends the workers stop accepting work and fail every queued job with
// the context's error.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	logger := logging.FromContext(ctx)

	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func(w int) {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					logger.Debug("ingest worker shutting down", zap.Int("worker", w))
					i.shutdown()
					for job := range i.jobs {
						finish(job, nil, fmt.Errorf("ingest %s: %w", job.Request.Filename, ctx.Err()))
					}
					return
				case job, ok := <-i.jobs:
					if !ok {
						return
					}
					if err := ctx.Err(); err != nil {
						finish(job, nil, fmt.Errorf("ingest %s: %w", job.Request.Filename, err))
						continue
					}
					logger.Debug("ingest worker picked job",
						zap.Int("worker", w), zap.String("filename", job.Request.Filename))
					res, err := i.processOne(ctx, job)
					if err != nil {
						logger.Error("ingest job failed", zap.String("filename", job.Request.Filename), zap.Error(err))
					}
					finish(job, res, err)
				}
			}
		}(w)
	}
}

// Enqueue schedules a job. It blocks while the queue is full, until ctx is
// done or the ingestor stops accepting work.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrQueueClosed
	}
	i.senders.Add(1)
	i.mu.Unlock()
	defer i.senders.Done()

	select {
	case i.jobs <- job:
		return nil
	case <-i.stop:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to drain the queue.
// Jobs still queued when no worker is running fail with ErrQueueClosed.
func (i *DocumentIngestor) Close() {
	i.shutdown()
	i.wg.Wait()
	for job := range i.jobs {
		finish(job, nil, ErrQueueClosed)
	}
}

// shutdown rejects new jobs, waits out senders already blocked in Enqueue
// and closes the queue so workers can drain it.
func (i *DocumentIngestor) shutdown() {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.stop)
	}
	i.mu.Unlock()
	i.senders.Wait()
	i.closeJobs.Do(func() { close(i.jobs) })
}

func finish(job Job, res *StoreResult, err error) {
	if job.Done != nil {
		job.Done(res, err)
	}
}

// processOne loads and stores a single job under the per-job timeout.
func (i *DocumentIngestor) processOne(ctx context.Context, job Job) (*StoreResult, error) {
	jobCtx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	req := job.Request
	if job.Load != nil {
		data, err := job.Load(jobCtx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", req.Filename, err)
		}
		req.Data = data
	}
	return i.storage.Store(jobCtx, req)
}
