// Package call は通話の開始許可（残高チェックと決済）とセッションライフサイクルを提供する。
package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/fitlink/internal/metrics"
	"github.com/hitoshi/fitlink/internal/model"
	"github.com/hitoshi/fitlink/internal/repository"
)

// 拒否理由のメトリクスラベル
const (
	rejectReasonNotFound            = "not_found"
	rejectReasonInsufficientBalance = "insufficient_balance"
)

// AdmissionResult は通話開始許可の結果を表す。
type AdmissionResult struct {
	Session        *model.CallSession
	CallerWallet   decimal.Decimal
	ReceiverWallet decimal.Decimal
	// AlreadyPaid は24時間ウィンドウ内の支払い済み判定で料金が免除されたことを示す。
	AlreadyPaid bool
	// ReconciliationWarning は発信者の引き落とし後に受信者への加算が失敗したことを示す。
	// 決済自体は成立扱いだが、オペレータによる照合が必要になる。
	ReconciliationWarning bool
}

// Eligibility は通話可否の事前チェック結果を表す。
type Eligibility struct {
	CanCall      bool
	CallerWallet decimal.Decimal
	TrainerFee   decimal.Decimal
}

// Service は通話の開始許可・終了・履歴を提供するサービス層。
type Service struct {
	accounts  repository.AccountRepository
	calls     repository.CallSessionRepository
	receipts  repository.PaymentReceiptRepository
	collector metrics.MetricsCollector

	bypassWindow time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// bypassWindowは支払い後に通話料金が免除される期間（通常24時間）。
func NewService(
	accounts repository.AccountRepository,
	calls repository.CallSessionRepository,
	receipts repository.PaymentReceiptRepository,
	collector metrics.MetricsCollector,
	bypassWindow time.Duration,
) *Service {
	return &Service{
		accounts:     accounts,
		calls:        calls,
		receipts:     receipts,
		collector:    collector,
		bypassWindow: bypassWindow,
	}
}

// StartCall は通話の開始許可を行う。
// 決済手順:
//  1. 発信者と受信者のアカウントを取得し、受信者がトレーナーであることを確認する
//  2. ペアの最新領収書が免除ウィンドウ内なら支払い済みとして残高を変更しない
//  3. 未払いの場合、残高チェック付きの単一UPDATEで発信者から料金を引き落とす
//     （読み取り後の上書き保存ではないため、並行呼び出しでの二重引き落としは起こらない）
//  4. 受信者へ同額を加算する。ここで失敗しても発信者の引き落としは取り消さず、
//     ReconciliationWarningとして通知する（失敗シグナルを失わないことが最低条件）
//  5. セッションレコードをongoingで作成しIDを返す
func (s *Service) StartCall(ctx context.Context, callerID, receiverID string) (*AdmissionResult, error) {
	caller, err := s.accounts.FindByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("発信者アカウントの取得に失敗しました: %w", err)
	}
	if caller == nil {
		s.collector.RecordAdmissionRejected(rejectReasonNotFound)
		return nil, model.NewUserNotFoundError(callerID)
	}

	receiver, err := s.accounts.FindByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("受信者アカウントの取得に失敗しました: %w", err)
	}
	if receiver == nil || !receiver.IsTrainer() {
		s.collector.RecordAdmissionRejected(rejectReasonNotFound)
		return nil, model.NewTrainerNotFoundError(receiverID)
	}

	now := time.Now()
	fee := receiver.CallFee

	alreadyPaid, err := s.alreadyPaid(ctx, callerID, receiverID, now)
	if err != nil {
		return nil, err
	}

	result := &AdmissionResult{
		CallerWallet:   caller.Wallet,
		ReceiverWallet: receiver.Wallet,
		AlreadyPaid:    alreadyPaid,
	}

	if alreadyPaid {
		// ウィンドウ内の再通話は残高の多寡に関わらず無料
		s.collector.RecordFeeBypass()
	} else {
		debited, err := s.accounts.DebitIfSufficient(ctx, callerID, fee)
		if err != nil {
			s.collector.RecordSettlementFailure()
			slog.Error("通話料金の引き落としに失敗しました",
				slog.String("caller_id", callerID),
				slog.String("receiver_id", receiverID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSettlementFailedError()
		}
		if !debited {
			s.collector.RecordAdmissionRejected(rejectReasonInsufficientBalance)
			return nil, model.NewInsufficientBalanceError()
		}
		result.CallerWallet = caller.Wallet.Sub(fee)

		if err := s.accounts.Credit(ctx, receiverID, fee); err != nil {
			// 発信者は引き落とし済み。自動補償はスコープ外のため、
			// 警告として必ず表面化させる。
			s.collector.RecordReconciliationWarning()
			result.ReconciliationWarning = true
			slog.Error("受信者への加算に失敗しました（要照合）",
				slog.String("caller_id", callerID),
				slog.String("receiver_id", receiverID),
				slog.String("amount", fee.String()),
				slog.String("error", err.Error()),
			)
		} else {
			result.ReceiverWallet = receiver.Wallet.Add(fee)
		}

		receipt := &model.PaymentReceipt{
			ID:         uuid.NewString(),
			CallerID:   callerID,
			ReceiverID: receiverID,
			PaidAt:     now,
		}
		if err := s.receipts.Create(ctx, receipt); err != nil {
			// 残高移動は完了している。領収書が残らないと免除ウィンドウが
			// 効かなくなるだけなので、通話自体は継続させる。
			slog.Error("支払い領収書の保存に失敗しました",
				slog.String("caller_id", callerID),
				slog.String("receiver_id", receiverID),
				slog.String("error", err.Error()),
			)
		}
	}

	session := &model.CallSession{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     model.CallStatusOngoing,
		StartedAt:  now,
	}
	if err := s.calls.Create(ctx, session); err != nil {
		s.collector.RecordSettlementFailure()
		slog.Error("通話セッションの作成に失敗しました",
			slog.String("caller_id", callerID),
			slog.String("receiver_id", receiverID),
			slog.Bool("already_paid", alreadyPaid),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSettlementFailedError()
	}
	result.Session = session

	s.collector.RecordCallStarted()
	slog.Info("通話を開始しました",
		slog.String("call_id", session.ID),
		slog.String("caller_id", callerID),
		slog.String("receiver_id", receiverID),
		slog.Bool("already_paid", alreadyPaid),
	)

	return result, nil
}

// EndCall はセッションをcompletedに遷移させる。
// 既に終端状態のセッションに対してもended_atを上書きして成功する（重複終了の許容）。
func (s *Service) EndCall(ctx context.Context, callID string) (*model.CallSession, error) {
	return s.terminate(ctx, callID, model.CallStatusCompleted)
}

// MarkMissed はセッションをmissedに遷移させる。
// 不在判定は発信側クライアントのタイムアウトで駆動される（サーバー側の配達保証はない）。
func (s *Service) MarkMissed(ctx context.Context, callID string) (*model.CallSession, error) {
	return s.terminate(ctx, callID, model.CallStatusMissed)
}

func (s *Service) terminate(ctx context.Context, callID string, status model.CallStatus) (*model.CallSession, error) {
	session, err := s.calls.Terminate(ctx, callID, status, time.Now())
	if err != nil {
		return nil, fmt.Errorf("通話セッションの更新に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewCallNotFoundError(callID)
	}

	s.collector.RecordCallTerminated(string(status))
	slog.Info("通話を終了しました",
		slog.String("call_id", callID),
		slog.String("status", string(status)),
	)

	return session, nil
}

// CheckEligibility は残高と免除ウィンドウに基づく通話可否を返す。残高は変更しない。
func (s *Service) CheckEligibility(ctx context.Context, callerID, receiverID string) (*Eligibility, error) {
	caller, err := s.accounts.FindByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("発信者アカウントの取得に失敗しました: %w", err)
	}
	if caller == nil {
		return nil, model.NewUserNotFoundError(callerID)
	}

	receiver, err := s.accounts.FindByID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("受信者アカウントの取得に失敗しました: %w", err)
	}
	if receiver == nil || !receiver.IsTrainer() {
		return nil, model.NewTrainerNotFoundError(receiverID)
	}

	alreadyPaid, err := s.alreadyPaid(ctx, callerID, receiverID, time.Now())
	if err != nil {
		return nil, err
	}

	return &Eligibility{
		CanCall:      alreadyPaid || caller.Wallet.Cmp(receiver.CallFee) >= 0,
		CallerWallet: caller.Wallet,
		TrainerFee:   receiver.CallFee,
	}, nil
}

// Wallet はアカウントのウォレット情報を返す。
func (s *Service) Wallet(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return account, nil
}

// CallerHistory は発信者の通話履歴を新しい順で返す。
func (s *Service) CallerHistory(ctx context.Context, callerID string) ([]*model.CallSession, error) {
	sessions, err := s.calls.ListByCaller(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("通話履歴の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// ReceiverHistory は受信者の通話履歴を新しい順で返す。
func (s *Service) ReceiverHistory(ctx context.Context, receiverID string) ([]*model.CallSession, error) {
	sessions, err := s.calls.ListByReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("通話履歴の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// alreadyPaid はペアの最新領収書が免除ウィンドウ内かどうかを判定する。
func (s *Service) alreadyPaid(ctx context.Context, callerID, receiverID string, now time.Time) (bool, error) {
	receipt, err := s.receipts.FindLatestByPair(ctx, callerID, receiverID)
	if err != nil {
		return false, fmt.Errorf("支払い領収書の取得に失敗しました: %w", err)
	}
	return receipt != nil && receipt.WithinBypassWindow(now, s.bypassWindow), nil
}
