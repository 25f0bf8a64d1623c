package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, business, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeTrainerNotFound     = "TRAINER_NOT_FOUND"
	ErrCodeCallNotFound        = "CALL_NOT_FOUND"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeSettlementFailed    = "SETTLEMENT_FAILED"
)

// NewValidationError はリクエストフィールド不足・不正のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "必須フィールドを確認して再度リクエストしてください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "business",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewTrainerNotFoundError はトレーナー未検出エラーを生成する。
// 指定IDのアカウントが存在しない場合と、存在するがトレーナーでない場合の両方で使用する。
func NewTrainerNotFoundError(trainerID string) *APIError {
	return &APIError{
		Code:     ErrCodeTrainerNotFound,
		Message:  fmt.Sprintf("指定されたトレーナーが見つかりません: %s", trainerID),
		Category: "business",
		Action:   "トレーナーIDを確認してください。",
	}
}

// NewCallNotFoundError は通話セッション未検出エラーを生成する。
func NewCallNotFoundError(callID string) *APIError {
	return &APIError{
		Code:     ErrCodeCallNotFound,
		Message:  fmt.Sprintf("指定された通話が見つかりません: %s", callID),
		Category: "business",
		Action:   "通話IDを確認してください。",
	}
}

// NewInsufficientBalanceError は残高不足エラーを生成する。
func NewInsufficientBalanceError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  "ウォレット残高が不足しています。",
		Category: "business",
		Action:   "ウォレットにチャージしてから再度お試しください。",
	}
}

// NewSettlementFailedError は決済処理の失敗エラーを生成する。
// ストアの書き込みエラーなどユーザー側で解決できない失敗に使用する。
// 詳細はログにのみ記録し、ユーザーには一般的なメッセージを返す。
func NewSettlementFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSettlementFailed,
		Message:  "決済処理に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
