package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ersonp/lore-state/internal/application/handlers"
	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/domain/services"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
	embedder "github.com/ersonp/lore-state/internal/infrastructure/embedder/openai"
	llm "github.com/ersonp/lore-state/internal/infrastructure/llm/openai"
	"github.com/ersonp/lore-state/internal/infrastructure/logging"
	"github.com/ersonp/lore-state/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/lore-state/internal/infrastructure/vectordb/qdrant"
)

var errNoLLM = errors.New("no LLM configured (set llm.api_key or OPENAI_API_KEY)")

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
// Handlers that need a text generator are nil when none is configured.
type Deps struct {
	Config        *config.Config
	Logger        *zap.Logger
	Games         *handlers.GameHandler
	Import        *handlers.ImportHandler
	Ingest        *handlers.IngestHandler
	Entities      *handlers.EntityHandler
	Relationships *handlers.RelationshipHandler
	Query         *handlers.QueryHandler
	Context       *handlers.ContextHandler
	Rollback      *handlers.RollbackHandler
	Narrate       *handlers.NarrateHandler
	Index         *handlers.IndexHandler
}

// internalDeps holds all dependencies including low-level components.
// Used internally by helper functions.
type internalDeps struct {
	Deps
	store    *sqlite.Repository
	index    *qdrant.Repository // nil when semantic recall is disabled
	embedder *embedder.Embedder
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withGame resolves the --game flag before calling fn.
func withGame(ctx context.Context, fn func(*Deps, *entities.Game) error) error {
	return withDeps(ctx, func(d *Deps) error {
		game, err := d.Games.HandleResolve(ctx, globalGame)
		if err != nil {
			return err
		}
		return fn(d, game)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
// Used by commands that need direct repository access.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	d := &internalDeps{store: store}

	// Semantic recall needs both the vector store and the embedder.
	var (
		index       ports.FactIndex
		emb         ports.Embedder
		collections ports.CollectionManager
		vectorSize  uint64
	)
	if cfg.Qdrant.Enabled() {
		d.embedder, err = embedder.NewEmbedder(cfg.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		d.index, err = qdrant.NewRepository(cfg.Qdrant)
		if err != nil {
			return fmt.Errorf("creating qdrant repository: %w", err)
		}
		defer d.index.Close()
		index, emb, collections = d.index, d.embedder, d.index
		vectorSize = d.embedder.VectorSize()
	}

	populator := services.NewPopulator(store, index, emb, populatorOptions(cfg.Populator), logger.Named("populator"))
	reader := services.NewReader(store, index, emb)
	assembler := services.NewContextAssembler(store, contextLimits(cfg.Context), logger.Named("context"))

	var (
		narrator *services.Narrator
		ingest   *handlers.IngestHandler
	)
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return fmt.Errorf("creating llm client: %w", err)
		}
		pipeline := services.NewExtractionPipeline(client, reader, populator, cfg.Pipeline.MaxConcurrency, logger.Named("pipeline"))
		narrator = services.NewNarrator(client, assembler, populator, pipeline, logger.Named("narrator"))
		ingest = handlers.NewIngestHandler(pipeline, reader, services.DefaultSegmentSize, logger.Named("ingest"))
	}

	d.Deps = Deps{
		Config:        cfg,
		Logger:        logger,
		Games:         handlers.NewGameHandler(populator, reader),
		Import:        handlers.NewImportHandler(populator, reader, narrator),
		Ingest:        ingest,
		Entities:      handlers.NewEntityHandler(reader),
		Relationships: handlers.NewRelationshipHandler(reader),
		Query:         handlers.NewQueryHandler(reader),
		Context:       handlers.NewContextHandler(assembler),
		Rollback:      handlers.NewRollbackHandler(populator, reader),
		Narrate:       handlers.NewNarrateHandler(narrator),
		Index:         handlers.NewIndexHandler(collections, populator, reader, vectorSize),
	}

	return fn(d)
}

func populatorOptions(c config.PopulatorConfig) services.PopulatorOptions {
	return services.PopulatorOptions{
		AllowNegativeCredits: c.AllowNegativeCredits,
		SimilarityFloor:      c.SimilarityFloor,
		StartingCredits:      c.StartingCredits,
	}
}

func contextLimits(c config.ContextConfig) services.ContextLimits {
	return services.ContextLimits{
		MaxConnectedLocations: c.MaxConnectedLocations,
		MaxNPCsPresent:        c.MaxNPCsPresent,
		MaxNPCsRelevant:       c.MaxNPCsRelevant,
		MaxCommitments:        c.MaxCommitments,
		MaxEvents:             c.MaxEvents,
		MaxImportantFacts:     c.MaxImportantFacts,
		MaxLocationFacts:      c.MaxLocationFacts,
		MaxNPCFacts:           c.MaxNPCFacts,
		ImportantMinLevel:     c.ImportantMinLevel,
		ImportantLookback:     c.ImportantLookback,
		LocalLookback:         c.LocalLookback,
		MaxCycleSummaries:     c.MaxCycleSummaries,
		MaxMessageSummaries:   c.MaxMessageSummaries,
		MaxTextLength:         c.MaxTextLength,
	}
}
