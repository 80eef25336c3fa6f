package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bitesync/internal/auth"
	"github.com/hitoshi/bitesync/internal/chat"
	"github.com/hitoshi/bitesync/internal/config"
	"github.com/hitoshi/bitesync/internal/dashboard"
	"github.com/hitoshi/bitesync/internal/database"
	"github.com/hitoshi/bitesync/internal/handler"
	"github.com/hitoshi/bitesync/internal/logger"
	"github.com/hitoshi/bitesync/internal/metrics"
	"github.com/hitoshi/bitesync/internal/middleware"
	"github.com/hitoshi/bitesync/internal/profile"
	"github.com/hitoshi/bitesync/internal/project"
	"github.com/hitoshi/bitesync/internal/repository"
	"github.com/hitoshi/bitesync/internal/schedule"
	"github.com/hitoshi/bitesync/internal/security"
	"github.com/hitoshi/bitesync/internal/user"
	"github.com/hitoshi/bitesync/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// カレントディレクトリに.envがあれば読み込み、JSON構造化ログをセットアップしてから
// 環境変数からConfigを読み込む。
func Init(w io.Writer) (*config.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv は.envファイルを読み込む。ファイルがない場合は何もしない。
// 既に設定されている環境変数は上書きしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return fmt.Errorf("%w\n%s", err, Usage)
	}

	if cmd == CommandHelp {
		if w == nil {
			w = os.Stdout
		}
		_, err := io.WriteString(w, Usage)
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("llm_provider", cfg.LLMProvider),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 3. リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	loginRepo := repository.NewPostgresLoginRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	commitmentRepo := repository.NewPostgresCommitmentRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 4. ドメインサービス
	sanitizer := security.NewTextSanitizer()

	authService := auth.NewService(
		accountRepo, sessionRepo, loginRepo, auth.NewNotifier(),
		auth.ServiceConfig{
			SessionSecret: []byte(cfg.SessionSecret),
			SessionMaxAge: cfg.SessionMaxAge,
		},
	)

	reconciler := profile.NewReconciler(profileRepo, mc, cfg.StoreTimeout)
	profileService := profile.NewService(profileRepo, roleRepo, sanitizer, cfg.StoreTimeout)
	scheduleService := schedule.NewService(scheduleRepo, sanitizer, mc, cfg.StoreTimeout)
	commitmentService := schedule.NewCommitmentService(scheduleRepo, commitmentRepo, sanitizer, cfg.StoreTimeout)
	projectService := project.NewService(projectRepo, taskRepo, sanitizer, cfg.StoreTimeout)

	viewCache, sweeper, closeViewCache, err := newViewCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeViewCache(); err != nil {
			slog.Warn("failed to close view cache", slog.String("error", err.Error()))
		}
	}()
	dashboardService := dashboard.NewService(reconciler, profileService, scheduleService, viewCache)
	unsubscribe := authService.Subscribe(dashboardService.HandleSessionEvent)
	defer unsubscribe()

	if sweeper != nil {
		go cleanup.Every(ctx, cfg.CleanupInterval, func(context.Context) {
			if n := sweeper.Sweep(); n > 0 {
				slog.Debug("view cache swept", slog.Int("removed", n))
			}
		})
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	relay := chat.NewRelay(completer, cfg.ChatModel, cfg.ChatTimeout, mc)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitChat),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Metrics:        mc,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Dashboard:   dashboardService,
		Schedules:   scheduleService,
		Roles:       profileService,
		Commitments: commitmentService,
		Projects:    projectService,
		Chat:        relay,
		Accounts:    user.NewService(accountRepo, sessionRepo, dashboardService, cfg.StoreTimeout),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバー
	// WriteTimeoutはLLM応答待ちを含むためCHAT_TIMEOUTより長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen failed: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newViewCache はダッシュボードビューのキャッシュを生成する。
// REDIS_URLが設定されていればRedis、なければプロセス内キャッシュを使う。
// プロセス内キャッシュの場合は定期削除用のSweeperも返す。
// 返す関数は終了時に呼び、Redisクライアントの接続を閉じる。
func newViewCache(ctx context.Context, cfg *config.Config) (dashboard.ViewCache, cleanup.Sweeper, func() error, error) {
	if cfg.RedisURL == "" {
		mem := dashboard.NewMemoryViewCache(cfg.ViewCacheTTL)
		slog.Info("using in-memory view cache", slog.Duration("ttl", cfg.ViewCacheTTL))
		return mem, mem, func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// キャッシュ障害は読み込みミスとして扱われるため起動は継続する
		slog.Warn("redis is not reachable; dashboard views will be rebuilt on every load",
			slog.String("addr", opts.Addr),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("using redis view cache", slog.String("addr", opts.Addr))
	}
	return dashboard.NewRedisViewCache(client, "", cfg.ViewCacheTTL), nil, client.Close, nil
}

// newCompleter はLLM_PROVIDERに応じたLLMクライアントを生成する。
func newCompleter(ctx context.Context, cfg *config.Config) (chat.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := chat.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
		}
		return c, nil
	case config.ProviderOpenAI:
		return chat.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, &http.Client{Timeout: cfg.ChatTimeout}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと古いサインイン記録の削除をCLEANUP_INTERVALごとに実行する。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default(), cfg.LoginRetentionDays)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("login_retention_days", cfg.LoginRetentionDays),
	)

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はdistroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
