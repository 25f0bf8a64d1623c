package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitlink/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	CallService   CallServiceInterface
	WalletService WalletServiceInterface

	// シグナリングチャネル（WebSocketアップグレードハンドラー）
	SignalingHandler http.Handler

	// Prometheusメトリクスエンドポイント
	MetricsHandler http.Handler

	// ヘルスチェックのDB疎通確認
	PingDB func() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /healthz・/metrics・/wsはレート制限の外に配置する
// （監視系とWebSocketの長時間接続はAPIレートの対象にしない）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	callHandler := NewCallHandler(deps.CallService)
	walletHandler := NewWalletHandler(deps.WalletService)

	// --- レート制限の外のルート ---

	r.Get("/healthz", healthzHandler(deps.PingDB))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.SignalingHandler != nil {
		r.Method(http.MethodGet, "/ws", deps.SignalingHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/call", func(r chi.Router) {
			// POST /api/call/start - 決済を伴うため専用レート制限を追加
			r.With(deps.RateLimiter.AdmissionMiddleware()).Post("/start", callHandler.StartCall)

			r.Post("/end", callHandler.EndCall)
			r.Post("/missed", callHandler.MarkMissed)

			r.Get("/check/{userId}/{trainerId}", callHandler.CheckEligibility)
			r.Get("/user/{userId}", callHandler.CallerHistory)
			r.Get("/trainer/{trainerId}", callHandler.ReceiverHistory)
		})

		r.Get("/api/wallet/{userId}", walletHandler.GetWallet)
	})

	return r
}

// healthzHandler はヘルスチェックハンドラーを返す。
// DB疎通確認が設定されている場合は失敗時に503を返す。
func healthzHandler(pingDB func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if pingDB != nil {
			if err := pingDB(); err != nil {
				slog.Error("healthcheck failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
