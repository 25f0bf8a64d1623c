// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role はアカウントの種別を表す。
type Role string

const (
	// RoleUser は一般ユーザー（通話の発信側）を示す。
	RoleUser Role = "user"
	// RoleTrainer はトレーナー（通話の受信側、料金設定を持つ）を示す。
	RoleTrainer Role = "trainer"
)

// Account はウォレット残高を持つアカウントを表す。
// 残高の更新はリポジトリの条件付きUPDATE経由でのみ行い、
// この構造体のWalletを書き換えて保存する方式は使用しない。
type Account struct {
	ID        string
	Name      string
	Role      Role
	Wallet    decimal.Decimal
	CallFee   decimal.Decimal // role=trainerの場合のみ有効な通話料金
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTrainer はこのアカウントが料金を請求できるトレーナーかどうかを返す。
func (a *Account) IsTrainer() bool {
	return a.Role == RoleTrainer
}
