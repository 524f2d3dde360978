// Package app はアプリケーションの起動と依存関係のワイヤリングを担う。
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

	"golang.org/x/time/rate"

	"github.com/hitoshi/calscan/internal/classifier"
	"github.com/hitoshi/calscan/internal/config"
	"github.com/hitoshi/calscan/internal/database"
	"github.com/hitoshi/calscan/internal/handler"
	"github.com/hitoshi/calscan/internal/ics"
	"github.com/hitoshi/calscan/internal/logger"
	"github.com/hitoshi/calscan/internal/metrics"
	"github.com/hitoshi/calscan/internal/middleware"
	"github.com/hitoshi/calscan/internal/repository"
	"github.com/hitoshi/calscan/internal/scan"
	"github.com/hitoshi/calscan/internal/scraper"
	"github.com/hitoshi/calscan/internal/security"
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
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
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
	accountRepo := repository.NewPostgresAccountRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. 収集経路の初期化
	feedFetcher := ics.NewFeedFetcher(
		ssrfGuard, ics.NewParser(), slog.Default(),
		cfg.FeedFetchTimeout, cfg.FeedMaxSize,
	)

	bridge := scraper.NewBridgeClient(
		sanitizer, slog.Default(),
		cfg.ScraperBridgeURL, cfg.ScraperBridgeTimeout,
	)

	// 5. 分類器の初期化
	// ORACLE_URLが未設定の場合、分類はヒューリスティックのみで動作する
	var oracle classifier.Oracle
	if cfg.OracleURL != "" {
		oracle = classifier.NewOracleClient(
			&http.Client{Timeout: cfg.OracleTimeout},
			slog.Default(),
			cfg.OracleURL, cfg.OracleModel, cfg.OracleRatePerSec,
		)
	}
	meetingClassifier := classifier.NewClassifier(oracle, slog.Default())

	// 6. 進行通知とメトリクス
	events := handler.NewSSEHub(slog.Default())
	collector := metrics.NewCollector()

	// 7. スキャンコントローラの構築
	controller := scan.NewController(scan.ControllerDeps{
		Accounts:        accountRepo,
		Entries:         entryRepo,
		CalendarScraper: bridge,
		EmailScraper:    bridge,
		FeedFetcher:     feedFetcher,
		Classifier:      meetingClassifier,
		Notifier:        events,
		Metrics:         collector,
		Logger:          slog.Default(),
	}, scan.Options{
		LookbackDays:    cfg.ScanLookbackDays,
		CalendarPeriods: cfg.CalendarPeriods,
		Retry: scan.RetryPolicy{
			Attempts: cfg.ScanRetryAttempts,
			Delay:    cfg.ScanRetryDelay,
		},
	})

	// 8. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		ScanController: controller,
		Entries:        entryRepo,
		Accounts:       accountRepo,

		FeedURLValidator: ssrfGuard,
		Events:           events,
		MetricsHandler:   collector.Handler(),
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSEストリームを切断しないようWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

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

	// 実行中のスキャンにはキャンセルを要求してから停止する
	if state := controller.Status(); state.Active() {
		if _, err := controller.Cancel(); err != nil {
			slog.Warn("failed to cancel running scan", slog.String("error", err.Error()))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
