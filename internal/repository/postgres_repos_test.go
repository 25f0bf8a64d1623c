package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/fitlink/internal/model"
)

// PostgresAccountRepoはAccountRepositoryインターフェースを満たすことを検証
func TestPostgresAccountRepo_ImplementsInterface(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
}

// PostgresCallSessionRepoはCallSessionRepositoryインターフェースを満たすことを検証
func TestPostgresCallSessionRepo_ImplementsInterface(t *testing.T) {
	var _ CallSessionRepository = (*PostgresCallSessionRepo)(nil)
}

// PostgresPaymentReceiptRepoはPaymentReceiptRepositoryインターフェースを満たすことを検証
func TestPostgresPaymentReceiptRepo_ImplementsInterface(t *testing.T) {
	var _ PaymentReceiptRepository = (*PostgresPaymentReceiptRepo)(nil)
}

// NewPostgresAccountRepoが正しく初期化されることを検証
func TestNewPostgresAccountRepo_Initializes(t *testing.T) {
	repo := NewPostgresAccountRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresCallSessionRepoが正しく初期化されることを検証
func TestNewPostgresCallSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresCallSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresPaymentReceiptRepoが正しく初期化されることを検証
func TestNewPostgresPaymentReceiptRepo_Initializes(t *testing.T) {
	repo := NewPostgresPaymentReceiptRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 料金免除ウィンドウ判定のコンセプトを検証（DB接続なし）
func TestPaymentReceipt_WithinBypassWindow(t *testing.T) {
	now := time.Now()

	fresh := &model.PaymentReceipt{PaidAt: now.Add(-23 * time.Hour)}
	if !fresh.WithinBypassWindow(now, 24*time.Hour) {
		t.Error("receipt paid 23h ago should be within a 24h window")
	}

	stale := &model.PaymentReceipt{PaidAt: now.Add(-25 * time.Hour)}
	if stale.WithinBypassWindow(now, 24*time.Hour) {
		t.Error("receipt paid 25h ago should be outside a 24h window")
	}

	boundary := &model.PaymentReceipt{PaidAt: now.Add(-24 * time.Hour)}
	if boundary.WithinBypassWindow(now, 24*time.Hour) {
		t.Error("receipt paid exactly 24h ago should be outside the window")
	}
}

// 残高とデビット額の比較セマンティクスを検証（DB接続なし）
// DebitIfSufficientのWHERE wallet >= amountと同じ判定をdecimalで再現する
func TestDecimalComparison_MatchesDebitPredicate(t *testing.T) {
	wallet := decimal.NewFromInt(100)

	if wallet.Cmp(decimal.NewFromInt(100)) < 0 {
		t.Error("wallet 100 should cover fee 100 (exact balance)")
	}
	if wallet.Cmp(decimal.NewFromInt(101)) >= 0 {
		t.Error("wallet 100 should not cover fee 101")
	}
}
