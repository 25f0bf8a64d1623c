package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/fitlink/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, wallet, call_fee, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Name, &account.Role, &account.Wallet, &account.CallFee, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// DebitIfSufficient は残高がamount以上の場合に限りamountを減算する。
// チェックと減算を単一のUPDATEで行うため、並行するadmitCall同士が
// 古い残高を見て両方通過する二重引き落としは起こらない。
func (r *PostgresAccountRepo) DebitIfSufficient(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET wallet = wallet - $1, updated_at = now()
		 WHERE id = $2 AND wallet >= $1`,
		amount, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to debit account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Credit はアカウントにamountを加算する。
// アカウントが存在しない場合はエラーを返す。
func (r *PostgresAccountRepo) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET wallet = wallet + $1, updated_at = now()
		 WHERE id = $2`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}

	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
