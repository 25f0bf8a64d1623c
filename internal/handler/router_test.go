package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/hitoshi/fitlink/internal/call"
	"github.com/hitoshi/fitlink/internal/middleware"
	"github.com/hitoshi/fitlink/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestDeps(callSvc CallServiceInterface, walletSvc WalletServiceInterface) (*RouterDeps, *middleware.RateLimiter) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	return &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            discardLogger(),
		CallService:       callSvc,
		WalletService:     walletSvc,
	}, rl
}

// ヘルスチェックが200とstatus:okを返すことを検証
func TestRouter_Healthz_OK(t *testing.T) {
	deps, rl := newTestDeps(&mockCallService{}, &mockWalletService{})
	defer rl.Stop()
	deps.PingDB = func() error { return nil }

	router := NewRouter(deps)
	rec := getJSON(router, "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

// DB疎通失敗時にヘルスチェックが503を返すことを検証
func TestRouter_Healthz_Unhealthy(t *testing.T) {
	deps, rl := newTestDeps(&mockCallService{}, &mockWalletService{})
	defer rl.Stop()
	deps.PingDB = func() error { return errors.New("connection refused") }

	router := NewRouter(deps)
	rec := getJSON(router, "/healthz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// 全ルートにCORSヘッダーが付与されることを検証
func TestRouter_CORSHeaders(t *testing.T) {
	deps, rl := newTestDeps(&mockCallService{}, &mockWalletService{})
	defer rl.Stop()

	router := NewRouter(deps)
	rec := getJSON(router, "/healthz")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q, want configured origin", got)
	}
}

// シグナリング・メトリクスハンドラーが指定パスにマウントされることを検証
func TestRouter_MountsOptionalHandlers(t *testing.T) {
	deps, rl := newTestDeps(&mockCallService{}, &mockWalletService{})
	defer rl.Stop()

	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
	deps.SignalingHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ws"))
	})

	router := NewRouter(deps)

	rec := getJSON(router, "/metrics")
	if rec.Body.String() != "metrics" {
		t.Errorf("metrics body = %q", rec.Body.String())
	}

	rec = getJSON(router, "/ws")
	if rec.Body.String() != "ws" {
		t.Errorf("ws body = %q", rec.Body.String())
	}
}

// APIルートが配線されていることをエンドツーエンドで検証
func TestRouter_CallStartWired(t *testing.T) {
	svc := &mockCallService{
		startCallFunc: func(ctx context.Context, callerID, receiverID string) (*call.AdmissionResult, error) {
			return &call.AdmissionResult{
				Session:        &model.CallSession{ID: "call-1", Status: model.CallStatusOngoing, StartedAt: time.Now()},
				CallerWallet:   decimal.NewFromInt(10),
				ReceiverWallet: decimal.NewFromInt(110),
			}, nil
		},
	}
	deps, rl := newTestDeps(svc, &mockWalletService{})
	defer rl.Stop()

	router := NewRouter(deps)
	rec := postJSON(t, router, "/api/call/start", startCallRequest{UserID: "u", TrainerID: "t"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

// 通話開始専用レート制限がAPI全般とは別に効くことを検証
func TestRouter_AdmissionRateLimit(t *testing.T) {
	svc := &mockCallService{
		startCallFunc: func(ctx context.Context, callerID, receiverID string) (*call.AdmissionResult, error) {
			return &call.AdmissionResult{
				Session:        &model.CallSession{ID: "c", Status: model.CallStatusOngoing},
				CallerWallet:   decimal.Zero,
				ReceiverWallet: decimal.Zero,
			}, nil
		},
		callerHistoryFunc: func(ctx context.Context, callerID string) ([]*model.CallSession, error) {
			return nil, nil
		},
	}

	deps, rl := newTestDeps(svc, &mockWalletService{})
	defer rl.Stop()
	// 通話開始はバースト2、API全般は余裕を持たせる
	cfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		AdmissionRate:   rate.Limit(1),
		AdmissionBurst:  2,
		CleanupInterval: time.Hour,
	}
	rl2 := middleware.NewRateLimiter(cfg)
	defer rl2.Stop()
	deps.RateLimiter = rl2

	router := NewRouter(deps)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, router, "/api/call/start", startCallRequest{UserID: "u", TrainerID: "t"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusCreated)
		}
	}

	rec := postJSON(t, router, "/api/call/start", startCallRequest{UserID: "u", TrainerID: "t"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// 履歴照会は引き続き許可される
	rec = getJSON(router, "/api/call/user/u")
	if rec.Code != http.StatusOK {
		t.Errorf("history status = %d, want %d", rec.Code, http.StatusOK)
	}
}
