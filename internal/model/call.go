package model

import "time"

// CallStatus は通話セッションの状態を表す。
// 遷移はongoing→completedまたはongoing→missedのみで、逆方向には戻らない。
type CallStatus string

const (
	// CallStatusOngoing は進行中の通話を示す。
	CallStatusOngoing CallStatus = "ongoing"
	// CallStatusCompleted は正常終了した通話を示す。
	CallStatusCompleted CallStatus = "completed"
	// CallStatusMissed は応答されなかった通話を示す。
	CallStatusMissed CallStatus = "missed"
)

// IsTerminal はこの状態が終端状態（completed/missed）かどうかを返す。
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusMissed
}

// CallSession は1回の通話試行を表す履歴レコード。
// 削除されることはなく、EndedAtはstatusが終端状態の場合のみ設定される。
type CallSession struct {
	ID         string
	CallerID   string
	ReceiverID string
	Status     CallStatus
	StartedAt  time.Time
	EndedAt    *time.Time
}

// PaymentReceipt は発信者が受信者の通話料金を支払った記録を表す。
// 同一ペアの領収書は複数共存し（監査証跡）、料金免除判定には最新の1件のみを参照する。
type PaymentReceipt struct {
	ID         string
	CallerID   string
	ReceiverID string
	PaidAt     time.Time
}

// WithinBypassWindow は領収書が料金免除ウィンドウ内（paidAtからwindow以内）かどうかを返す。
func (r *PaymentReceipt) WithinBypassWindow(now time.Time, window time.Duration) bool {
	return now.Sub(r.PaidAt) < window
}
