package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calscan/internal/middleware"
	"github.com/hitoshi/calscan/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// スキャン制御
	ScanController ScanControllerInterface

	// 永続化
	Entries  repository.EntryRepository
	Accounts repository.AccountRepository

	// フィードURLの事前検証
	FeedURLValidator FeedURLValidator

	// SSE配信ハブ
	Events *SSEHub

	// メトリクス公開ハンドラ（nil許容）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	scanHandler := NewScanHandler(deps.ScanController)
	entryHandler := NewEntryHandler(deps.Entries, deps.Entries)
	accountHandler := NewAccountHandler(deps.Accounts, deps.FeedURLValidator)

	// ヘルスチェックとメトリクスはレート制限の外
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// スキャン制御
		r.Route("/api/scan", func(r chi.Router) {
			// POST /api/scan/start - 開始専用レート制限を追加
			r.With(deps.RateLimiter.ScanStartMiddleware()).Post("/start", scanHandler.StartScan)
			r.Post("/pause", scanHandler.PauseScan)
			r.Post("/cancel", scanHandler.CancelScan)
			r.Get("/status", scanHandler.GetStatus)
		})

		// エントリ照会
		r.Route("/api/entries", func(r chi.Router) {
			r.Get("/", entryHandler.ListEntries)
			r.Delete("/", entryHandler.ClearEntries)
		})

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.ListAccounts)
			r.Post("/", accountHandler.CreateAccount)
			r.Delete("/{id}", accountHandler.DeleteAccount)
		})

		// 進行通知のSSEストリーム
		r.Method(http.MethodGet, "/api/events", deps.Events)
	})

	return r
}
