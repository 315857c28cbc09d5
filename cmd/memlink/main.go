package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexorial/memlink/internal/config"
	"github.com/nexorial/memlink/internal/engine"
	"github.com/nexorial/memlink/internal/llm"
	"github.com/nexorial/memlink/internal/storage"
	"github.com/nexorial/memlink/internal/storage/postgres"
	"github.com/nexorial/memlink/internal/storage/sqlite"
	"github.com/nexorial/memlink/internal/vocab"
)

func main() {
	once := flag.Bool("once", false, "Run one consolidation and purge sweep, then exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Printf("Storage backend: %s", cfg.Storage.Backend)

	eng := engine.New(store, buildEmbedder(cfg), buildGenerator(cfg), engineConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		sweep(ctx, eng, store)
		return
	}

	go runSweeps(ctx, eng, store, cfg.Daemon)
	log.Printf("memlink running; consolidating every %s, purging every %s",
		cfg.Daemon.ConsolidateInterval, cfg.Daemon.PurgeInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend == config.BackendPostgres {
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	}
	return sqlite.NewStore(cfg.Storage.SQLitePath)
}

// buildEmbedder returns nil when no API key is configured; the engine
// degrades to lexical-only retrieval in that case.
func buildEmbedder(cfg *config.Config) llm.EmbeddingGenerator {
	if cfg.LLM.OpenAIAPIKey == "" {
		log.Println("No OpenAI API key configured; running without embeddings")
		return nil
	}
	client := llm.NewOpenAIEmbeddingClient(llm.OpenAIEmbeddingConfig{
		APIKey:     cfg.LLM.OpenAIAPIKey,
		Model:      cfg.LLM.EmbeddingModel,
		BaseURL:    cfg.LLM.OpenAIBaseURL,
		Timeout:    cfg.LLM.RequestTimeout,
		Dimensions: cfg.LLM.EmbeddingDims,
	})
	cached, err := llm.NewCachedEmbedder(client, cfg.LLM.CacheCapacity)
	if err != nil {
		log.Printf("Embedding cache disabled: %v", err)
		return client
	}
	return cached
}

func buildGenerator(cfg *config.Config) llm.TextGenerator {
	if cfg.LLM.OpenAIAPIKey == "" {
		return nil
	}
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.OpenAIAPIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.OpenAIBaseURL,
		Timeout: cfg.LLM.RequestTimeout,
	})
}

func engineConfig(cfg *config.Config) engine.Config {
	vocabulary := vocab.Default()
	if cfg.Engine.VocabPath != "" {
		loaded, err := vocab.Load(cfg.Engine.VocabPath)
		if err != nil {
			log.Fatalf("Failed to load vocabulary %s: %v", cfg.Engine.VocabPath, err)
		}
		vocabulary = loaded
	}
	return engine.Config{
		FuzzyFloor: cfg.Engine.FuzzyFloor,
		Weights: engine.Weights{
			Vector:     cfg.Engine.WeightVector,
			Lexical:    cfg.Engine.WeightLexical,
			Recency:    cfg.Engine.WeightRecency,
			Importance: cfg.Engine.WeightImportance,
		},
		WindowSize: cfg.Engine.WindowSize,
		Vocabulary: vocabulary,
	}
}

// runSweeps drives the out-of-band maintenance loops until the context
// is canceled.
func runSweeps(ctx context.Context, eng *engine.Engine, store storage.Store, cfg config.DaemonConfig) {
	consolidate := time.NewTicker(cfg.ConsolidateInterval)
	defer consolidate.Stop()
	purge := time.NewTicker(cfg.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-consolidate.C:
			consolidateAll(ctx, eng, store)
		case <-purge.C:
			purgeExpired(ctx, store)
		}
	}
}

func sweep(ctx context.Context, eng *engine.Engine, store storage.Store) {
	consolidateAll(ctx, eng, store)
	purgeExpired(ctx, store)
}

func consolidateAll(ctx context.Context, eng *engine.Engine, store storage.Store) {
	users, err := store.UsersWithSessions(ctx)
	if err != nil {
		log.Printf("Consolidation sweep: listing users: %v", err)
		return
	}
	for _, userID := range users {
		written, err := eng.Consolidator().Consolidate(ctx, userID)
		if err != nil {
			log.Printf("Consolidation for %s: %v", userID, err)
			continue
		}
		if written > 0 {
			log.Printf("Consolidated %d window(s) for %s", written, userID)
		}
	}
}

func purgeExpired(ctx context.Context, store storage.Store) {
	removed, err := store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Purge sweep: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("Purged %d expired memories", removed)
	}
}
