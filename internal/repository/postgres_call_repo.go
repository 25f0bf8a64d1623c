package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/fitlink/internal/model"
)

// PostgresCallSessionRepo はPostgreSQLを使用した通話セッションリポジトリ。
type PostgresCallSessionRepo struct {
	db *sql.DB
}

// NewPostgresCallSessionRepo はPostgresCallSessionRepoを生成する。
func NewPostgresCallSessionRepo(db *sql.DB) *PostgresCallSessionRepo {
	return &PostgresCallSessionRepo{db: db}
}

// Create は通話セッションを作成する。
func (r *PostgresCallSessionRepo) Create(ctx context.Context, session *model.CallSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_sessions (id, caller_id, receiver_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.CallerID, session.ReceiverID, session.Status, session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call session: %w", err)
	}
	return nil
}

// FindByID は指定IDの通話セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresCallSessionRepo) FindByID(ctx context.Context, id string) (*model.CallSession, error) {
	session := &model.CallSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, caller_id, receiver_id, status, started_at, ended_at
		 FROM call_sessions WHERE id = $1`,
		id,
	).Scan(&session.ID, &session.CallerID, &session.ReceiverID, &session.Status, &session.StartedAt, &session.EndedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call session by ID: %w", err)
	}

	return session, nil
}

// Terminate はセッションを終端状態に更新し、更新後のレコードを返す。
// statusとended_atを単一のUPDATEで書き込むため、終端状態からongoingへ
// 戻る中間状態が観測されることはない。セッションが存在しない場合はnilを返す。
func (r *PostgresCallSessionRepo) Terminate(ctx context.Context, id string, status model.CallStatus, endedAt time.Time) (*model.CallSession, error) {
	session := &model.CallSession{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE call_sessions SET status = $2, ended_at = $3
		 WHERE id = $1
		 RETURNING id, caller_id, receiver_id, status, started_at, ended_at`,
		id, status, endedAt,
	).Scan(&session.ID, &session.CallerID, &session.ReceiverID, &session.Status, &session.StartedAt, &session.EndedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to terminate call session: %w", err)
	}

	return session, nil
}

// ListByCaller は発信者の通話履歴を開始時刻の降順で返す。
func (r *PostgresCallSessionRepo) ListByCaller(ctx context.Context, callerID string) ([]*model.CallSession, error) {
	return r.list(ctx,
		`SELECT id, caller_id, receiver_id, status, started_at, ended_at
		 FROM call_sessions WHERE caller_id = $1 ORDER BY started_at DESC`,
		callerID,
	)
}

// ListByReceiver は受信者の通話履歴を開始時刻の降順で返す。
func (r *PostgresCallSessionRepo) ListByReceiver(ctx context.Context, receiverID string) ([]*model.CallSession, error) {
	return r.list(ctx,
		`SELECT id, caller_id, receiver_id, status, started_at, ended_at
		 FROM call_sessions WHERE receiver_id = $1 ORDER BY started_at DESC`,
		receiverID,
	)
}

func (r *PostgresCallSessionRepo) list(ctx context.Context, query, arg string) ([]*model.CallSession, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list call sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.CallSession
	for rows.Next() {
		session := &model.CallSession{}
		if err := rows.Scan(&session.ID, &session.CallerID, &session.ReceiverID, &session.Status, &session.StartedAt, &session.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call sessions: %w", err)
	}

	return sessions, nil
}

// compile-time interface check
var _ CallSessionRepository = (*PostgresCallSessionRepo)(nil)
