package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hitoshi/connectin/internal/auth"
	"github.com/hitoshi/connectin/internal/cache"
	"github.com/hitoshi/connectin/internal/chat"
	"github.com/hitoshi/connectin/internal/config"
	"github.com/hitoshi/connectin/internal/database"
	"github.com/hitoshi/connectin/internal/handler"
	"github.com/hitoshi/connectin/internal/logger"
	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/notification"
	"github.com/hitoshi/connectin/internal/post"
	"github.com/hitoshi/connectin/internal/project"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
	"github.com/hitoshi/connectin/internal/storage"
	"github.com/hitoshi/connectin/internal/taxonomy"
	"github.com/hitoshi/connectin/internal/team"
	"github.com/hitoshi/connectin/internal/todo"
	"github.com/hitoshi/connectin/internal/tracing"
	"github.com/hitoshi/connectin/internal/user"
	"github.com/hitoshi/connectin/internal/worker/cleanup"
)

const (
	shutdownTimeout  = 30 * time.Second
	ssrfFetchTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数（と.envファイル）からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// help と healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHelp:
		Usage(w)
		return nil
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// 引数の誤りは設定の読み込み前に報告する
	var migrateArgs MigrateArgs
	if cmd == CommandMigrate {
		var err error
		if migrateArgs, err = ParseMigrateArgs(args[1:]); err != nil {
			return err
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateArgs)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// revocationStore は失効トークンの保存先を選択する。
// REDIS_URLが設定されていればRedis、そうでなければPostgreSQLを使う。
// 戻り値のclose関数は常に呼び出してよい。
func revocationStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.RevokedTokenRepository, func(), error) {
	if cfg.RedisURL == "" {
		return repository.NewPostgresRevokedTokenRepo(db), func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("using redis for token revocation")
	return cache.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

// objectStorage はS3互換ストレージが設定されていればクライアントを返す。
// 未設定の場合はnilを返し、写真アップロードは無効になる。
func objectStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if !cfg.StorageEnabled() {
		slog.Warn("object storage is not configured; photo uploads are disabled")
		return nil, nil
	}

	store, err := storage.NewMinIO(ctx, storage.MinIOConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init object storage: %w", err)
	}
	return store, nil
}

// oauthProviders は設定済みのOAuthプロバイダーのみを返す。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	return providers
}

// apiServer はAPIサーバーの構成要素。
type apiServer struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

// close はバックグラウンド処理を止め、外部接続を逆順に閉じる。
func (s *apiServer) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServer は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*apiServer, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	memberRepo := repository.NewPostgresMembershipRepo(db)
	voteRepo := repository.NewPostgresVoteRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	todoRepo := repository.NewPostgresTodoRepo(db)
	teamRepo := repository.NewPostgresTeamRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)
	tagRepo := repository.NewPostgresTermRepo(db, repository.TermTableTags)
	skillRepo := repository.NewPostgresTermRepo(db, repository.TermTableSkills)

	srv := &apiServer{}

	revoked, closeRevoked, err := revocationStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closeRevoked)

	store, err := objectStorage(ctx, cfg)
	if err != nil {
		srv.close()
		return nil, err
	}

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard(ssrfFetchTimeout)
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	authService := auth.NewService(userRepo, identRepo, revoked, tokens, oauthProviders(cfg)...)
	userService := user.NewService(userRepo, skillRepo, revoked, store, ssrfGuard, cfg.UploadMaxSize)
	notificationService := notification.NewService(notificationRepo)

	projectService := project.NewService(project.Deps{
		Projects:  projectRepo,
		Members:   memberRepo,
		Votes:     voteRepo,
		Comments:  commentRepo,
		Users:     userRepo,
		Tags:      tagRepo,
		Skills:    skillRepo,
		Notifier:  notificationService,
		Sanitizer: sanitizer,
		Recorder:  recorder,
	})
	todoService := todo.NewService(todo.Deps{
		Todos:     todoRepo,
		Users:     userRepo,
		Tags:      tagRepo,
		Notifier:  notificationService,
		Sanitizer: sanitizer,
	})
	teamService := team.NewService(teamRepo, userRepo)
	postService := post.NewService(postRepo, tagRepo, sanitizer)
	tagService := taxonomy.NewService(tagRepo, "tag")
	skillService := taxonomy.NewService(skillRepo, "skill")

	hub := chat.NewHub(recorder)
	chatService := chat.NewService(chatRepo, userRepo, sanitizer, hub, recorder)

	// 5. ルーターの構築
	srv.rateLimiter = middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       srv.rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HSTS:           cfg.CookieSecure,
		Logger:         log,
		Metrics:        recorder,
		MetricsHandler: metrics.Handler(reg),
		DB:             db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		UserService:   userService,
		MaxUploadSize: cfg.UploadMaxSize,

		ProjectService:      projectService,
		TeamService:         teamService,
		PostService:         postService,
		TagService:          tagService,
		SkillService:        skillService,
		TodoService:         todoService,
		NotificationService: notificationService,

		ChatService: chatService,
		ChatHub:     hub,
		Upgrader:    chat.NewUpgrader(cfg.CORSAllowedOrigin),
	})

	// 受信したtraceparentを引き継ぎ、リクエストごとにスパンを作成する
	srv.handler = otelhttp.NewHandler(router, cfg.ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	)
	return srv, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. トレーシング
	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			slog.Error("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 2. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. 依存関係のワイヤリング
	srv, err := buildServer(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.close()

	slog.Info("API dependencies wired",
		slog.Any("oauth_providers", providerNames(cfg)),
		slog.Bool("redis", cfg.RedisURL != ""),
		slog.Bool("object_storage", cfg.StorageEnabled()),
		slog.Bool("otlp", cfg.OTLPEndpoint != ""),
	)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブをスケジュール実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップ対象の初期化
	// Redisで失効を管理する場合、期限切れトークンはTTLで消えるためDB側の削除は不要
	var tokens cleanup.RevokedTokenDeleter
	if cfg.RedisURL == "" {
		tokens = repository.NewPostgresRevokedTokenRepo(db)
	}

	recorder, metricsServer := workerMetrics(cfg.WorkerMetricsPort)
	if metricsServer != nil {
		go func() {
			slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	job := cleanup.NewCleanupJob(cleanup.Deps{
		Tokens:        tokens,
		Notifications: repository.NewPostgresNotificationRepo(db),
		Applications:  repository.NewPostgresMembershipRepo(db),
		Recorder:      recorder,
		Logger:        slog.Default(),
	})
	job.NotificationRetentionDays = cfg.NotificationRetentionDays

	slog.Info("worker starting",
		slog.String("schedule", cfg.CleanupSchedule),
		slog.Int("notification_retention_days", cfg.NotificationRetentionDays),
	)

	// 3. スケジューラをメインgoroutineで実行（ブロッキング）
	if err := job.Start(ctx, cfg.CleanupSchedule); err != nil {
		return fmt.Errorf("failed to start cleanup scheduler: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// workerMetrics はワーカーのRecorderを返す。
// portが空ならメトリクスを記録せず、指定されていればそのポートで公開するサーバーも返す。
func workerMetrics(port string) (metrics.Recorder, *http.Server) {
	if port == "" {
		return metrics.Nop{}, nil
	}
	reg := prometheus.NewRegistry()
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     metrics.Handler(reg),
		ReadTimeout: 5 * time.Second,
	}
	return metrics.NewCollector(reg), server
}

// runMigrate はデータベースマイグレーションを操作する。
// up は未適用のマイグレーションをすべて適用し、down は直近のものから指定件数を取り消す。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	var (
		status database.MigrationStatus
		err    error
	)
	switch args.Action {
	case MigrateDown:
		status, err = database.RollbackMigrations(cfg.DatabaseURL, args.Steps)
	case MigrateVersion:
		status, err = database.CurrentMigration(cfg.DatabaseURL)
	default:
		status, err = database.RunMigrations(cfg.DatabaseURL)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.String("action", string(args.Action)),
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("dirty", status.Dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// providerNames は有効なOAuthプロバイダー名をログ出力用に返す。
func providerNames(cfg *config.Config) []string {
	var names []string
	if cfg.GoogleEnabled() {
		names = append(names, model.ProviderGoogle)
	}
	if cfg.GitHubEnabled() {
		names = append(names, model.ProviderGitHub)
	}
	return names
}
