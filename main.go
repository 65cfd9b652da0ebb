package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"videodocs/analysis"
	"videodocs/config"
	"videodocs/docindex"
	"videodocs/media"
	"videodocs/pipeline"
	"videodocs/server"
	"videodocs/session"
	"videodocs/synthesis"
	"videodocs/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *openai.Client
	if cfg.HasValidAPI() {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		log.Printf("no API key configured, running with mock transcription and no synthesis")
	}

	if !media.ToolsAvailable() {
		log.Printf("ffmpeg/ffprobe not found on PATH, media operations will fail")
	}
	runner := media.ExecRunner{}
	extractor := media.NewExtractor(runner, false)

	analyzer := analysis.NewRelevanceAnalyzer(client, cfg.AnalysisModel, cfg.AnalysisFrames)
	synth := synthesis.NewSynthesizer(client, cfg.ChatModel, cfg.SegmentModel)

	chain := transcribe.NewChain(
		transcribe.NewWhisperAPI(client, cfg.WhisperModel),
		transcribe.NewWhisperLocal(runner, ""),
		&transcribe.Mock{DurationOf: extractor.ProbeDuration},
	).Pick(cfg.Transcriber)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("building session store: %v", err)
	}

	index, err := buildIndex(ctx, cfg, client)
	if err != nil {
		log.Fatalf("building doc index: %v", err)
	}

	manager := session.NewManager(store, cfg.ZombieTimeout)
	orch := pipeline.NewOrchestrator(extractor, analyzer, chain, synth, store, pipeline.Options{
		MaxVideoLength: cfg.MaxVideoLength,
		FrameInterval:  cfg.FrameInterval,
		ProxyFPS:       cfg.ProxyFPS,
		SegmentSeconds: float64(cfg.SegmentSeconds),
		WorkDir:        cfg.DataDir,

		SkipTranscription: !cfg.STTEnabled,
	})

	srv := server.New(cfg, manager, orch, store, index)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore {
	case "postgres":
		return session.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return session.NewFileStore(cfg.DataDir)
	}
}

func buildIndex(ctx context.Context, cfg *config.Config, client *openai.Client) (docindex.Index, error) {
	switch cfg.DocIndex {
	case "pgvector":
		embedder := docindex.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		return docindex.NewPgVectorIndex(ctx, cfg.PostgresURL, embedder)
	case "milvus":
		embedder := docindex.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		return docindex.NewMilvusIndex(ctx, cfg.MilvusAddr, embedder)
	default:
		return docindex.NewMemoryIndex(), nil
	}
}
