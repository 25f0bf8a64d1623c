// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/fitlink/internal/model"
)

// AccountRepository はアカウント（ウォレット残高）の永続化インターフェース。
// 残高の変更は条件付きUPDATEのみで行い、読み取り後の上書き保存は提供しない。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// DebitIfSufficient は残高がamount以上の場合に限りamountを減算する。
	// 減算できた場合はtrueを、残高不足で行がマッチしなかった場合はfalseを返す。
	// 残高チェックと減算を単一のUPDATEで行うため、並行呼び出しで二重引き落としは発生しない。
	DebitIfSufficient(ctx context.Context, id string, amount decimal.Decimal) (bool, error)

	// Credit はアカウントにamountを加算する。
	// アカウントが存在しない場合はエラーを返す。
	Credit(ctx context.Context, id string, amount decimal.Decimal) error
}

// CallSessionRepository は通話セッションの永続化インターフェース。
// セッションは履歴レコードであり、削除操作は提供しない。
type CallSessionRepository interface {
	// Create は通話セッションを作成する。
	Create(ctx context.Context, session *model.CallSession) error

	// FindByID は指定IDの通話セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.CallSession, error)

	// Terminate はセッションを終端状態（completed/missed）に更新し、更新後のレコードを返す。
	// セッションが存在しない場合はnilを返す。
	// 既に終端状態のセッションに対して呼ばれた場合もstatusとended_atを上書きする。
	Terminate(ctx context.Context, id string, status model.CallStatus, endedAt time.Time) (*model.CallSession, error)

	// ListByCaller は発信者の通話履歴を開始時刻の降順で返す。
	ListByCaller(ctx context.Context, callerID string) ([]*model.CallSession, error)

	// ListByReceiver は受信者の通話履歴を開始時刻の降順で返す。
	ListByReceiver(ctx context.Context, receiverID string) ([]*model.CallSession, error)
}

// PaymentReceiptRepository は支払い領収書の永続化インターフェース。
// 領収書は追記専用で、同一ペアの複数領収書が監査証跡として共存する。
type PaymentReceiptRepository interface {
	// Create は領収書を作成する。
	Create(ctx context.Context, receipt *model.PaymentReceipt) error

	// FindLatestByPair は指定ペアの最新の領収書を取得する。見つからない場合はnilを返す。
	FindLatestByPair(ctx context.Context, callerID, receiverID string) (*model.PaymentReceipt, error)
}
