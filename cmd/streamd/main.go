package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"streamd/internal/cache"
	"streamd/internal/common/fsutil"
	"streamd/internal/config"
	"streamd/internal/engine"
	"streamd/internal/httpapi"
	"streamd/internal/provider"
	"streamd/internal/store"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	addr := flag.String("addr", envStr("STREAMD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", envStr("STREAMD_CONFIG", ""), "Optional config file (.yaml, .json or .toml)")
	storeDriver := flag.String("store", envStr("STREAMD_STORE", "memory"), "Task storage driver: memory, file or postgres")
	dataDir := flag.String("data-dir", envStr("STREAMD_DATA_DIR", "~/.streamd/tasks"), "Data directory for the file store")
	postgresURL := flag.String("postgres-url", envStr("STREAMD_POSTGRES_URL", ""), "Postgres DSN for the postgres store")
	cacheDriver := flag.String("cache", envStr("STREAMD_CACHE", "memory"), "Response cache driver: memory, redis or none")
	redisAddr := flag.String("redis-addr", envStr("STREAMD_REDIS_ADDR", "localhost:6379"), "Redis address for the redis cache")
	cacheTTL := flag.Int("cache-ttl", envInt("STREAMD_CACHE_TTL", 3600), "Response cache TTL in seconds")
	defaultProv := flag.String("default-provider", envStr("STREAMD_DEFAULT_PROVIDER", "openai"), "Provider used when a request omits one")
	openaiBaseURL := flag.String("openai-base-url", envStr("OPENAI_BASE_URL", "https://api.openai.com"), "OpenAI-compatible API base URL")
	openaiModel := flag.String("openai-model", envStr("STREAMD_OPENAI_MODEL", "gpt-4o"), "Default OpenAI model")
	ollamaHost := flag.String("ollama-host", envStr("OLLAMA_HOST", "http://localhost:11434"), "Ollama server URL")
	ollamaModel := flag.String("ollama-model", envStr("STREAMD_OLLAMA_MODEL", "llama3"), "Default Ollama model")
	maxAttempts := flag.Int("max-attempts", envInt("STREAMD_MAX_ATTEMPTS", 3), "Provider attempts per task before giving up")
	retryBackoffMS := flag.Int("retry-backoff-ms", envInt("STREAMD_RETRY_BACKOFF_MS", 200), "Initial retry backoff in milliseconds")
	genTimeoutSec := flag.Int("gen-timeout", envInt("STREAMD_GEN_TIMEOUT", 600), "Per-generation provider timeout in seconds (0 disables)")
	maxPromptBytes := flag.Int("max-prompt-bytes", envInt("STREAMD_MAX_PROMPT_BYTES", 1<<16), "Maximum accepted prompt size in bytes")
	ownerWindowHours := flag.Int("owner-window-hours", envInt("STREAMD_OWNER_WINDOW_HOURS", 24), "Default recency window for session listings")
	cleanupAfterHours := flag.Int("cleanup-after-hours", envInt("STREAMD_CLEANUP_AFTER_HOURS", 24), "Age after which stale tasks are purged")
	cleanupIntervalMin := flag.Int("cleanup-interval-min", envInt("STREAMD_CLEANUP_INTERVAL_MIN", 60), "Minutes between automatic cleanup runs (0 disables)")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "streamd").Logger()

	// A config file fills in values the command line left at their defaults.
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		overlayStr := func(name string, dst *string, v string) {
			if !set[name] && v != "" {
				*dst = v
			}
		}
		overlayInt := func(name string, dst *int, v int) {
			if !set[name] && v != 0 {
				*dst = v
			}
		}
		overlayStr("addr", addr, cfg.Addr)
		overlayStr("store", storeDriver, cfg.StoreDriver)
		overlayStr("data-dir", dataDir, cfg.DataDir)
		overlayStr("postgres-url", postgresURL, cfg.PostgresURL)
		overlayStr("cache", cacheDriver, cfg.CacheDriver)
		overlayStr("redis-addr", redisAddr, cfg.RedisAddr)
		overlayInt("cache-ttl", cacheTTL, cfg.CacheTTLSeconds)
		overlayStr("default-provider", defaultProv, cfg.DefaultProvider)
		overlayStr("openai-base-url", openaiBaseURL, cfg.OpenAIBaseURL)
		overlayStr("openai-model", openaiModel, cfg.OpenAIModel)
		overlayStr("ollama-host", ollamaHost, cfg.OllamaHost)
		overlayStr("ollama-model", ollamaModel, cfg.OllamaModel)
		overlayInt("max-attempts", maxAttempts, cfg.MaxAttempts)
		overlayInt("retry-backoff-ms", retryBackoffMS, cfg.RetryBackoffMS)
		overlayInt("gen-timeout", genTimeoutSec, cfg.GenTimeoutSeconds)
		overlayInt("max-prompt-bytes", maxPromptBytes, cfg.MaxPromptBytes)
		overlayInt("owner-window-hours", ownerWindowHours, cfg.OwnerWindowHours)
		overlayInt("cleanup-after-hours", cleanupAfterHours, cfg.CleanupAfterHours)
		if cfg.OpenAIAPIKey != "" && os.Getenv("OPENAI_API_KEY") == "" {
			os.Setenv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
		}
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	st, cleanup, err := buildStore(baseCtx, *storeDriver, *dataDir, *postgresURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", *storeDriver).Msg("failed to open task store")
	}
	defer cleanup()

	ca, err := buildCache(baseCtx, *cacheDriver, *redisAddr, time.Duration(*cacheTTL)*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", *cacheDriver).Msg("failed to open response cache")
	}

	genTimeout := time.Duration(*genTimeoutSec) * time.Second
	openai := provider.NewOpenAI(provider.OpenAIOptions{
		BaseURL:        *openaiBaseURL,
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		Model:          *openaiModel,
		RequestTimeout: genTimeout,
	})
	ollama, err := provider.NewOllama(provider.OllamaOptions{
		Host:           *ollamaHost,
		Model:          *ollamaModel,
		RequestTimeout: genTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure ollama provider")
	}
	providers := provider.NewRegistry(openai, ollama)
	providers.SetDefault(*defaultProv)

	eng := engine.New(baseCtx, st, ca, providers, engine.Options{
		MaxAttempts:    *maxAttempts,
		RetryBackoff:   time.Duration(*retryBackoffMS) * time.Millisecond,
		MaxPromptBytes: *maxPromptBytes,
		Logger:         logger,
	})

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetOwnerWindowHours(float64(*ownerWindowHours))
	httpapi.SetCleanupAgeHours(float64(*cleanupAfterHours))
	if envStr("STREAMD_CORS_ENABLED", "") == "1" {
		httpapi.SetCORSOptions(true,
			splitCSV(envStr("STREAMD_CORS_ORIGINS", "*")),
			splitCSV(envStr("STREAMD_CORS_METHODS", "GET,POST,DELETE,OPTIONS")),
			splitCSV(envStr("STREAMD_CORS_HEADERS", "Content-Type")),
		)
	}

	mux := httpapi.NewMux(eng)
	srv := &http.Server{Addr: *addr, Handler: mux}

	// Periodic retention sweep.
	if *cleanupIntervalMin > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(*cleanupIntervalMin) * time.Minute)
			defer ticker.Stop()
			maxAge := time.Duration(*cleanupAfterHours) * time.Hour
			for {
				select {
				case <-baseCtx.Done():
					return
				case <-ticker.C:
					n, err := eng.Cleanup(baseCtx, maxAge)
					if err != nil {
						logger.Warn().Err(err).Msg("cleanup sweep failed")
					} else if n > 0 {
						logger.Info().Int("cleaned", n).Msg("cleanup sweep removed stale tasks")
					}
				}
			}
		}()
	}

	go func() {
		logger.Info().Str("addr", *addr).Str("store", *storeDriver).Str("cache", *cacheDriver).Msg("streamd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	cancelBase()
	eng.Wait()
}

func buildStore(ctx context.Context, driver, dataDir, postgresURL string) (store.Store, func(), error) {
	noop := func() {}
	switch driver {
	case "memory", "":
		return store.NewMemory(), noop, nil
	case "file":
		dir, err := fsutil.ExpandHome(dataDir)
		if err != nil {
			return nil, noop, err
		}
		st, err := store.NewFile(dir)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case "postgres":
		pg, err := store.NewPostgres(ctx, postgresURL)
		if err != nil {
			return nil, noop, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, noop, err
		}
		httpapi.SetReadyCheck(func() bool {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return pg.Ping(pctx) == nil
		})
		return pg, pg.Close, nil
	default:
		return nil, noop, errUnknownDriver("store", driver)
	}
}

func buildCache(ctx context.Context, driver, redisAddr string, ttl time.Duration) (cache.Cache, error) {
	switch driver {
	case "none", "":
		return nil, nil
	case "memory":
		return cache.NewMemory(1024, ttl), nil
	case "redis":
		return cache.NewRedis(ctx, redisAddr, ttl)
	default:
		return nil, errUnknownDriver("cache", driver)
	}
}

type unknownDriverError struct{ kind, name string }

func (e unknownDriverError) Error() string { return "unknown " + e.kind + " driver: " + e.name }

func errUnknownDriver(kind, name string) error { return unknownDriverError{kind: kind, name: name} }
