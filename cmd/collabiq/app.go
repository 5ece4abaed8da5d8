package main

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/classify"
	"github.com/limmutable/collabiq/internal/config"
	"github.com/limmutable/collabiq/internal/cost"
	"github.com/limmutable/collabiq/internal/dlq"
	"github.com/limmutable/collabiq/internal/health"
	"github.com/limmutable/collabiq/internal/linker"
	"github.com/limmutable/collabiq/internal/mailsource"
	"github.com/limmutable/collabiq/internal/notionkb"
	"github.com/limmutable/collabiq/internal/orchestrator"
	"github.com/limmutable/collabiq/internal/pipeline"
	"github.com/limmutable/collabiq/internal/ports"
	"github.com/limmutable/collabiq/internal/providers"
	"github.com/limmutable/collabiq/internal/quality"
	"github.com/limmutable/collabiq/internal/retry"
	"github.com/limmutable/collabiq/internal/telemetry"
)

// app bundles every wired component one CLI invocation needs. Built
// fresh per invocation from loaded configuration, mirroring the
// teacher's NewServer(cfg, ...) construction in cmd/agentflow/server.go.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	health  *health.Tracker
	cost    *cost.Tracker
	quality *quality.Tracker
	dlq     *dlq.Store

	mail ports.MailSource
	kb   ports.KnowledgeBase
	orch *orchestrator.Orchestrator

	linker     *linker.Linker
	classifier *classify.Classifier

	controller *pipeline.Controller
}

func buildApp(configPath string) (*app, int) {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return nil, exitConfig
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return nil, exitConfig
	}

	secrets := ports.NewSecretResolver(nil, nil, cfg.Secrets.CacheTTL, logger)
	ctx := context.Background()

	healthTracker := health.New(cfg.DataRoot+"/health.json", logger)
	healthTracker.Load()
	costTracker := cost.New(cfg.DataRoot+"/cost.json", defaultPrices(), logger)
	costTracker.Load()
	qualityTracker := quality.New(cfg.DataRoot+"/quality.json", logger)
	qualityTracker.Load()
	dlqStore := dlq.New(cfg.DataRoot, logger)
	dlqStore.LoadProcessedIndex()

	adapters := map[string]providers.Adapter{}
	if key, ok := secrets.Get(ctx, "ANTHROPIC_API_KEY"); ok {
		adapters["claude"] = providers.NewClaudeAdapter(key, anthropic.ModelClaude3_5SonnetLatest)
	}
	if key, ok := secrets.Get(ctx, "OPENAI_API_KEY"); ok {
		adapters["openai"] = providers.NewOpenAIAdapter(key, openai.ChatModelGPT4oMini)
	}
	if key, ok := secrets.Get(ctx, "GEMINI_API_KEY"); ok {
		gemini, gerr := providers.NewGeminiAdapter(ctx, key, "gemini-1.5-flash")
		if gerr != nil {
			logger.Warn("gemini adapter unavailable", zap.Error(gerr))
		} else {
			adapters["gemini"] = gemini
		}
	}

	strategy := strategyFor(cfg.Providers.Strategy)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Providers.MaxAttempts

	orch := orchestrator.New(adapters, cfg.Providers.Priority, strategy, healthTracker, costTracker, qualityTracker, retryCfg, logger)
	orch.QualityRouting = cfg.Providers.QualityRouting

	var kb ports.KnowledgeBase
	if token, ok := secrets.Get(ctx, "NOTION_API_KEY"); ok {
		kb = ports.NewCachingKB(notionkb.New(token), cfg.DataRoot+"/notion_cache", logger)
	}

	mail := mailsource.New(cfg.DataRoot + "/inbox")
	lk := linker.New()

	var typeTags []string
	if kb != nil {
		if schema, serr := kb.DiscoverSchema(ctx, cfg.KB.DatabaseID, false); serr != nil {
			logger.Warn("failed to discover notion schema for classification tags", zap.Error(serr))
		} else {
			typeTags = schema.TypeTags
		}
	}
	clf := classify.New(orch, typeTags)

	pcfg := pipeline.Config{
		Workers: cfg.Pipeline.Workers, QueueSize: cfg.Pipeline.QueueSize,
		DataRoot: cfg.DataRoot, DatabaseID: cfg.KB.DatabaseID,
		GroupQuery: cfg.Pipeline.GroupQuery, FetchLimit: cfg.Pipeline.FetchLimit,
		OnDuplicate: ports.OnDuplicate(cfg.Pipeline.OnDuplicate),
	}
	var controller *pipeline.Controller
	if kb != nil {
		controller = pipeline.New(pcfg, mail, kb, orch, lk, clf, dlqStore, logger)
	}

	return &app{
		cfg: cfg, logger: logger,
		health: healthTracker, cost: costTracker, quality: qualityTracker, dlq: dlqStore,
		mail: mail, kb: kb, orch: orch,
		linker: lk, classifier: clf,
		controller: controller,
	}, exitOK
}

func strategyFor(name string) orchestrator.Strategy {
	switch name {
	case "consensus":
		return orchestrator.ConsensusStrategy{}
	case "best_match":
		return orchestrator.BestMatchStrategy{}
	case "all_providers":
		return orchestrator.AllProvidersStrategy{}
	default:
		return orchestrator.FailoverStrategy{}
	}
}

// defaultPrices are per-million-token USD prices used to seed the
// cost tracker; operators override via the provider's actual billed
// rate once known.
func defaultPrices() map[string]cost.PerMillionPrice {
	return map[string]cost.PerMillionPrice{
		"claude": {In: 3.00, Out: 15.00},
		"openai": {In: 0.15, Out: 0.60},
		"gemini": {In: 0.00, Out: 0.00},
	}
}
