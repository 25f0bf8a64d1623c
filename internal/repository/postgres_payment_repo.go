package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fitlink/internal/model"
)

// PostgresPaymentReceiptRepo はPostgreSQLを使用した支払い領収書リポジトリ。
type PostgresPaymentReceiptRepo struct {
	db *sql.DB
}

// NewPostgresPaymentReceiptRepo はPostgresPaymentReceiptRepoを生成する。
func NewPostgresPaymentReceiptRepo(db *sql.DB) *PostgresPaymentReceiptRepo {
	return &PostgresPaymentReceiptRepo{db: db}
}

// Create は領収書を作成する。既存の領収書は上書きせず追記する。
func (r *PostgresPaymentReceiptRepo) Create(ctx context.Context, receipt *model.PaymentReceipt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_receipts (id, caller_id, receiver_id, paid_at)
		 VALUES ($1, $2, $3, $4)`,
		receipt.ID, receipt.CallerID, receipt.ReceiverID, receipt.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment receipt: %w", err)
	}
	return nil
}

// FindLatestByPair は指定ペアの最新の領収書を取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentReceiptRepo) FindLatestByPair(ctx context.Context, callerID, receiverID string) (*model.PaymentReceipt, error) {
	receipt := &model.PaymentReceipt{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, caller_id, receiver_id, paid_at
		 FROM payment_receipts
		 WHERE caller_id = $1 AND receiver_id = $2
		 ORDER BY paid_at DESC
		 LIMIT 1`,
		callerID, receiverID,
	).Scan(&receipt.ID, &receipt.CallerID, &receipt.ReceiverID, &receipt.PaidAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest payment receipt: %w", err)
	}

	return receipt, nil
}

// compile-time interface check
var _ PaymentReceiptRepository = (*PostgresPaymentReceiptRepo)(nil)
