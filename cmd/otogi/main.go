// Command otogi is the main entry point for the otogi narrative chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/mutsucloud/otogi/internal/archive"
	archivepg "github.com/mutsucloud/otogi/internal/archive/postgres"
	"github.com/mutsucloud/otogi/internal/archive/sqlite"
	"github.com/mutsucloud/otogi/internal/config"
	"github.com/mutsucloud/otogi/internal/health"
	"github.com/mutsucloud/otogi/internal/mediajob"
	"github.com/mutsucloud/otogi/internal/memory"
	"github.com/mutsucloud/otogi/internal/notify"
	"github.com/mutsucloud/otogi/internal/observe"
	"github.com/mutsucloud/otogi/internal/recall"
	recallpg "github.com/mutsucloud/otogi/internal/recall/postgres"
	"github.com/mutsucloud/otogi/internal/resilience"
	"github.com/mutsucloud/otogi/internal/server"
	"github.com/mutsucloud/otogi/internal/session"
	"github.com/mutsucloud/otogi/internal/stats"
	"github.com/mutsucloud/otogi/internal/tagparse"
	"github.com/mutsucloud/otogi/internal/turn"
	"github.com/mutsucloud/otogi/pkg/provider/chat"
	"github.com/mutsucloud/otogi/pkg/provider/chat/anyllm"
	oachat "github.com/mutsucloud/otogi/pkg/provider/chat/openai"
	"github.com/mutsucloud/otogi/pkg/provider/embeddings"
	oaembed "github.com/mutsucloud/otogi/pkg/provider/embeddings/openai"
	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
	orimg "github.com/mutsucloud/otogi/pkg/provider/imagegen/openrouter"
	volcimg "github.com/mutsucloud/otogi/pkg/provider/imagegen/volcengine"
	"github.com/mutsucloud/otogi/pkg/provider/summarize"
	"github.com/mutsucloud/otogi/pkg/provider/videogen"
	"github.com/mutsucloud/otogi/pkg/provider/videogen/fal"
	volcvid "github.com/mutsucloud/otogi/pkg/provider/videogen/volcengine"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "otogi: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "otogi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("otogi starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "otogi"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Core collaborators ────────────────────────────────────────────────────
	store := session.NewStore()
	hub := notify.NewHub()
	defer hub.Close()
	roster := tagparse.NewRoster(cfg.Characters)

	var checkers []health.Checker

	var arch archive.Archive
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		pg, err := archivepg.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to the transcript archive", "err", err)
			return 1
		}
		defer pg.Close()
		guard := archive.NewGuard(pg)
		arch = guard
		checkers = append(checkers,
			health.Database("archive", pg),
			health.Degraded("archive_writes", guard),
		)
		slog.Info("transcript archive connected")
	}

	var slots *sqlite.SlotStore
	if path := cfg.Archive.SQLitePath; path != "" {
		slots, err = sqlite.Open(path)
		if err != nil {
			slog.Error("failed to open the save slot store", "err", err, "path", path)
			return 1
		}
		defer slots.Close()
		slog.Info("save slot store opened", "path", path)
	}

	var recaller *recall.Recaller
	if dsn := cfg.Memory.PostgresDSN; dsn != "" && providers.Embeddings != nil {
		dims := cfg.Memory.EmbeddingDimensions
		if dims <= 0 {
			dims = 1536
		}
		idx, err := recallpg.NewIndex(ctx, dsn, dims)
		if err != nil {
			slog.Error("failed to connect to the recall index", "err", err)
			return 1
		}
		defer idx.Close()
		recaller, err = recall.NewRecaller(recall.RecallerConfig{
			Embedder: providers.Embeddings,
			Index:    idx,
			Logger:   logger,
		})
		if err != nil {
			slog.Error("failed to initialise semantic recall", "err", err)
			return 1
		}
		checkers = append(checkers, health.Database("recall", idx))
		slog.Info("semantic recall enabled", "dimensions", dims)
	}

	sumModel := cfg.Providers.Summarize.Model
	if sumModel == "" {
		sumModel = cfg.Providers.Chat.Model
	}
	memCfg := memory.EngineConfig{
		Summarizer: summarize.NewLLMSummarizer(providers.Summarize, sumModel),
		Store:      store,
		Notifier:   hub,
		Threshold:  cfg.Memory.Threshold,
		Metrics:    metrics,
		Logger:     logger,
	}
	if recaller != nil {
		memCfg.Recorder = recaller
	}
	engine, err := memory.NewEngine(memCfg)
	if err != nil {
		slog.Error("failed to initialise the memory engine", "err", err)
		return 1
	}

	media, err := mediajob.NewOrchestrator(mediajob.OrchestratorConfig{
		Images:       providers.Image,
		Videos:       providers.Video,
		Store:        store,
		Roster:       roster,
		Notifier:     hub,
		Metrics:      metrics,
		PollInterval: cfg.Media.PollInterval.Std(),
		MaxAttempts:  cfg.Media.MaxAttempts,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("failed to initialise the media orchestrator", "err", err)
		return 1
	}

	reconciler := stats.NewReconciler(stats.ReconcilerConfig{
		Policy: cfg.Stats.Policy,
		Bounds: stats.Bounds{Min: cfg.Stats.Min, Max: cfg.Stats.Max},
	})

	ctrl, err := turn.NewController(turn.ControllerConfig{
		Chat:     providers.Chat,
		Store:    store,
		Memory:   engine,
		Media:    media,
		Stats:    reconciler,
		Roster:   roster,
		Notifier: hub,
		Metrics:  metrics,
		Prompt: turn.PromptConfig{
			WorldInfo:  cfg.Prompt.WorldInfo,
			NovelStyle: cfg.Prompt.NovelStyle,
			Features: turn.Features{
				ImageGen:     cfg.Features.ImageGen,
				VideoGen:     cfg.Features.VideoGen,
				MusicControl: cfg.Features.MusicControl,
			},
		},
		Model: cfg.Providers.Chat.Model,
	})
	if err != nil {
		slog.Error("failed to initialise the turn controller", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Only the log level applies live; everything else needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.CharactersChanged || d.FeaturesChanged || d.PromptChanged {
			slog.Warn("config changed on disk; character, feature, and prompt changes take effect after a restart")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Addr:              cfg.Server.ListenAddr,
		TLS:               cfg.Server.TLS,
		Store:             store,
		Turns:             ctrl,
		Archive:           arch,
		Slots:             slots,
		Recaller:          recaller,
		Notifier:          hub,
		Health:            health.New(checkers...),
		Metrics:           metrics,
		Characters:        cfg.Characters,
		DefaultCharacter:  cfg.DefaultCharacter,
		DefaultMemoryMode: cfg.Memory.DefaultMode,
		Logger:            logger,
	})
	if err != nil {
		slog.Error("failed to initialise the server", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready; press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────

	// anyllm routes to any backend any-llm-go supports; the backend name comes
	// from options.backend (e.g. "deepseek", "gemini", "anthropic").
	reg.RegisterChat("anyllm", func(entry config.ProviderEntry) (chat.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// openai talks to the OpenAI API directly, or to any compatible relay via
	// base_url.
	reg.RegisterChat("openai", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []oachat.Option
		if entry.BaseURL != "" {
			opts = append(opts, oachat.WithBaseURL(entry.BaseURL))
		}
		return oachat.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Image generation ──────────────────────────────────────────────────────

	reg.RegisterImage("volcengine", func(entry config.ProviderEntry) (imagegen.Provider, error) {
		var opts []volcimg.Option
		if entry.Model != "" {
			opts = append(opts, volcimg.WithModel(entry.Model))
		}
		if size := optString(entry.Options, "size"); size != "" {
			opts = append(opts, volcimg.WithSize(size))
		}
		return volcimg.New(entry.APIKey, opts...)
	})

	reg.RegisterImage("openrouter", func(entry config.ProviderEntry) (imagegen.Provider, error) {
		var opts []orimg.Option
		if entry.Model != "" {
			opts = append(opts, orimg.WithModel(entry.Model))
		}
		return orimg.New(entry.APIKey, opts...)
	})

	// ── Video generation ──────────────────────────────────────────────────────

	reg.RegisterVideo("fal", func(entry config.ProviderEntry) (videogen.Provider, error) {
		var opts []fal.Option
		if entry.Model != "" {
			opts = append(opts, fal.WithModel(entry.Model))
		}
		return fal.New(entry.APIKey, opts...)
	})

	reg.RegisterVideo("volcengine", func(entry config.ProviderEntry) (videogen.Provider, error) {
		var opts []volcvid.Option
		if entry.Model != "" {
			opts = append(opts, volcvid.WithModel(entry.Model))
		}
		return volcvid.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// providerSet holds the instantiated providers the engine runs on.
type providerSet struct {
	Chat       chat.Provider
	Summarize  chat.Provider
	Image      imagegen.Provider
	Video      videogen.Provider
	Embeddings embeddings.Provider
}

// buildProviders instantiates every provider named in cfg using the registry,
// wrapping chat and image in failover groups when a fallback is configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	primary, err := reg.CreateChat(cfg.Providers.Chat)
	if err != nil {
		return nil, fmt.Errorf("create chat provider %q: %w", cfg.Providers.Chat.Name, err)
	}
	ps.Chat = primary
	slog.Info("provider created", "kind", "chat", "name", cfg.Providers.Chat.Name)

	if name := cfg.Providers.ChatFallback.Name; name != "" {
		secondary, err := reg.CreateChat(cfg.Providers.ChatFallback)
		if err != nil {
			return nil, fmt.Errorf("create chat fallback %q: %w", name, err)
		}
		fb := resilience.NewChatFallback(primary, cfg.Providers.Chat.Name, resilience.FallbackConfig{})
		fb.AddFallback(name, secondary)
		ps.Chat = fb
		slog.Info("provider created", "kind", "chat_fallback", "name", name)
	}

	ps.Summarize = ps.Chat
	if name := cfg.Providers.Summarize.Name; name != "" {
		p, err := reg.CreateChat(cfg.Providers.Summarize)
		if err != nil {
			return nil, fmt.Errorf("create summarize provider %q: %w", name, err)
		}
		ps.Summarize = p
		slog.Info("provider created", "kind", "summarize", "name", name)
	}

	if name := cfg.Providers.Image.Name; name != "" {
		p, err := reg.CreateImage(cfg.Providers.Image)
		if err != nil {
			return nil, fmt.Errorf("create image provider %q: %w", name, err)
		}
		ps.Image = p
		slog.Info("provider created", "kind", "image", "name", name)

		if fbName := cfg.Providers.ImageFallback.Name; fbName != "" {
			secondary, err := reg.CreateImage(cfg.Providers.ImageFallback)
			if err != nil {
				return nil, fmt.Errorf("create image fallback %q: %w", fbName, err)
			}
			fb := resilience.NewImageFallback(p, name, resilience.FallbackConfig{})
			fb.AddFallback(fbName, secondary)
			ps.Image = fb
			slog.Info("provider created", "kind", "image_fallback", "name", fbName)
		}
	}

	if name := cfg.Providers.Video.Name; name != "" {
		p, err := reg.CreateVideo(cfg.Providers.Video)
		if err != nil {
			return nil, fmt.Errorf("create video provider %q: %w", name, err)
		}
		ps.Video = p
		slog.Info("provider created", "kind", "video", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          otogi — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider("Summarize", cfg.Providers.Summarize.Name, cfg.Providers.Summarize.Model)
	printProvider("Image", cfg.Providers.Image.Name, cfg.Providers.Image.Model)
	printProvider("Video", cfg.Providers.Video.Name, cfg.Providers.Video.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printEnabled("Archive", cfg.Archive.PostgresDSN != "")
	printEnabled("Save slots", cfg.Archive.SQLitePath != "")
	printEnabled("Recall", cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name != "")
	fmt.Printf("║  Characters      : %-19d ║\n", len(cfg.Characters))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func printEnabled(kind string, on bool) {
	value := "(disabled)"
	if on {
		value = "enabled"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
