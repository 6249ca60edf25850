package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/auctiond/internal/auction"
	"github.com/hitoshi/auctiond/internal/auth"
	"github.com/hitoshi/auctiond/internal/bidding"
	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/config"
	"github.com/hitoshi/auctiond/internal/database"
	"github.com/hitoshi/auctiond/internal/handler"
	"github.com/hitoshi/auctiond/internal/live"
	"github.com/hitoshi/auctiond/internal/logger"
	"github.com/hitoshi/auctiond/internal/metrics"
	"github.com/hitoshi/auctiond/internal/middleware"
	"github.com/hitoshi/auctiond/internal/notification"
	"github.com/hitoshi/auctiond/internal/repository"
	"github.com/hitoshi/auctiond/internal/security"
	"github.com/hitoshi/auctiond/internal/worker/cleanup"
	"github.com/hitoshi/auctiond/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとスイーパーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	auctionRepo := repository.NewPostgresAuctionRepo(db)
	bidRepo := repository.NewPostgresBidRepo(db)
	notifRepo := repository.NewPostgresNotificationRepo(db)

	// 3. メトリクスとライブチャンネルの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	clk := clock.SystemClock{}
	hub := live.NewHub(slog.Default(), collector)

	// 4. ドメインサービスの初期化
	tokenService := auth.NewTokenService(cfg.TokenSecret, cfg.TokenMaxAge, clk)
	authService := auth.NewService(userRepo, tokenService, cfg.BcryptCost, clk)

	sanitizer := security.NewContentSanitizer()
	auctionService := auction.NewService(auctionRepo, bidRepo, sanitizer, clk)
	bidService := bidding.NewService(auctionRepo, bidRepo, notifRepo, hub, collector, clk)
	notifService := notification.NewService(notifRepo)

	liveHandler := live.NewHandler(hub, bidService, tokenService, slog.Default(), cfg.CORSAllowedOrigin)

	// 5. スイーパーの初期化（サーバープロセスでも動かし、ワーカー不在でも終了処理が進むようにする）
	sweeper := sweep.NewSweeper(
		auctionRepo, bidRepo, notifRepo, hub, collector,
		slog.Default(), clk, cfg.GraceWindow,
	)
	scheduler := sweep.NewScheduler(sweeper, slog.Default())

	// 6. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		BidRate:         rate.Limit(float64(cfg.RateLimitBid) / 60.0),
		BidBurst:        cfg.RateLimitBid,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:     tokenService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService:         authService,
		AuctionService:      auctionService,
		BidService:          bidService,
		NotificationService: notifService,

		LiveHandler: liveHandler,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// スイーパーをバックグラウンドで起動
	go scheduler.Start(ctx, cfg.SweepInterval)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、スイーパーと通知クリーンアップジョブを起動する。
// ライブチャンネルを持たないため、配信はスキップされる。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	auctionRepo := repository.NewPostgresAuctionRepo(db)
	bidRepo := repository.NewPostgresBidRepo(db)
	notifRepo := repository.NewPostgresNotificationRepo(db)

	clk := clock.SystemClock{}

	// 3. スイーパーの初期化（ブロードキャスターなし）
	sweeper := sweep.NewSweeper(
		auctionRepo, bidRepo, notifRepo, nil, nil,
		slog.Default(), clk, cfg.GraceWindow,
	)
	scheduler := sweep.NewScheduler(sweeper, slog.Default())

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(notifRepo, slog.Default(), cfg.NotificationRetentionDays)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("grace_window", cfg.GraceWindow),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スイーパーをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
