// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/config"
	"github.com/markdave123-py/docsift/internal/core"
	db "github.com/markdave123-py/docsift/internal/core/database"
	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
	"github.com/markdave123-py/docsift/internal/core/llm"
	objectclient "github.com/markdave123-py/docsift/internal/core/object-client"
	"github.com/markdave123-py/docsift/internal/core/parsing"
	"github.com/markdave123-py/docsift/internal/core/retrieval"
	"github.com/markdave123-py/docsift/internal/logging"
	"github.com/markdave123-py/docsift/internal/services"
)

const (
	Name    = "docsift"
	Version = "1.0.0"
)

// Deps are the externally backed collaborators. Objects and LLM may be nil.
type Deps struct {
	DB       core.DbClient
	Objects  core.ObjectClient
	Embedder core.EmbeddingProvider
	LLM      core.LLMProvider
}

type App struct {
	Config    *config.Config
	Deps      Deps
	Parser    *parsing.Service
	Storage   *ingestion_engine.StorageService
	Ingestor  *ingestion_engine.DocumentIngestor
	Builder   *retrieval.ContextBuilder
	Documents *services.DocumentService
	Ingest    *services.IngestService

	closers []func() error
	cancel  context.CancelFunc
}

// NewApp connects the database, blob storage and model providers, then
// assembles the pipeline and starts the ingest workers.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.FromContext(ctx)
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, dbClient.Close)
	logger.Info("database initialized and ready")

	deps := Deps{DB: dbClient}

	if cfg.BlobStorageEnabled() {
		objClient, err := objectclient.NewS3Client(initCtx, cfg)
		if err != nil {
			return fail(err)
		}
		deps.Objects = objClient
		logger.Info("object storage ready", zap.String("bucket", cfg.BucketName))
	} else {
		logger.Warn("BUCKET_NAME not set; original files will not be stored")
	}

	var embedder core.EmbeddingProvider
	if cfg.AIAPIKey != "" {
		gemini, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return fail(fmt.Errorf("couldn't initialize the embedder, %w", err))
		}
		closers = append(closers, gemini.Close)
		embedder = gemini

		gen, err := llm.NewGeminiLLM(initCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return fail(fmt.Errorf("couldn't initialize the llm, %w", err))
		}
		closers = append(closers, gen.Close)
		deps.LLM = gen
		logger.Info("gemini providers ready", zap.String("embed_model", cfg.EmbedModel), zap.String("gen_model", cfg.GenModel))
	} else {
		embedder = llm.NewHashEmbedder(cfg.EmbedDim)
		logger.Warn("GEMINI_API_KEY not set; using local hash embeddings and disabling /ask")
	}
	deps.Embedder = llm.NewCachedEmbedder(embedder, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)

	a := Assemble(ctx, cfg, deps)
	a.closers = append(closers, a.closers...)
	return a, nil
}

// NewParser builds the format registry and chunking defaults from cfg.
func NewParser(cfg *config.Config) *parsing.Service {
	return parsing.NewService(
		parsing.NewDefaultRegistry(parsing.DefaultToolchain(cfg.ConverterTimeout)),
		cfg.ChunkSize, cfg.ChunkOverlap)
}

// Assemble builds the pipeline on top of deps and starts the ingest workers.
func Assemble(ctx context.Context, cfg *config.Config, deps Deps) *App {
	parser := NewParser(cfg)

	bucket := ""
	if deps.Objects != nil {
		bucket = cfg.BucketName
	}
	ingCfg := &ingestion_engine.IngestConfig{
		Bucket:         bucket,
		EmbedBatchSize: cfg.EmbedBatchSize,
	}
	storage := ingestion_engine.NewStorageService(parser, deps.DB, deps.Objects, deps.Embedder, ingCfg)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ingestor := ingestion_engine.NewDocumentIngestor(storage, ingCfg)
	ingestor.Start(workerCtx, cfg.IngestWorkers)

	builder := retrieval.NewContextBuilder(deps.DB, deps.Embedder, retrieval.Defaults{
		Threshold:      &cfg.SearchThreshold,
		SemanticWeight: &cfg.SemanticWeight,
	})

	return &App{
		Config:    cfg,
		Deps:      deps,
		Parser:    parser,
		Storage:   storage,
		Ingestor:  ingestor,
		Builder:   builder,
		Documents: services.NewDocumentService(deps.DB, deps.Objects, bucket, builder),
		Ingest:    services.NewIngestService(storage, parser, ingestor, deps.DB, deps.Objects, bucket, cfg.IngestWorkers),
		cancel:    cancel,
	}
}

// Close drains the ingest queue, then releases providers and the database.
func (a *App) Close() {
	if a.Ingestor != nil {
		a.Ingestor.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}
