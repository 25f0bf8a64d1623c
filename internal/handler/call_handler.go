package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitlink/internal/call"
	"github.com/hitoshi/fitlink/internal/model"
)

// CallServiceInterface は通話ハンドラーが必要とするサービスインターフェース。
type CallServiceInterface interface {
	// StartCall は残高チェックと決済を行い、通話セッションを作成する。
	StartCall(ctx context.Context, callerID, receiverID string) (*call.AdmissionResult, error)
	// EndCall はセッションをcompletedに遷移させる。
	EndCall(ctx context.Context, callID string) (*model.CallSession, error)
	// MarkMissed はセッションをmissedに遷移させる。
	MarkMissed(ctx context.Context, callID string) (*model.CallSession, error)
	// CheckEligibility は残高を変更せずに通話可否を返す。
	CheckEligibility(ctx context.Context, callerID, receiverID string) (*call.Eligibility, error)
	// CallerHistory は発信者の通話履歴を新しい順で返す。
	CallerHistory(ctx context.Context, callerID string) ([]*model.CallSession, error)
	// ReceiverHistory は受信者の通話履歴を新しい順で返す。
	ReceiverHistory(ctx context.Context, receiverID string) ([]*model.CallSession, error)
}

// WalletServiceInterface はウォレットハンドラーが必要とするサービスインターフェース。
type WalletServiceInterface interface {
	// Wallet はアカウントのウォレット情報を返す。
	Wallet(ctx context.Context, userID string) (*model.Account, error)
}

// CallHandler は通話の開始許可・終了・履歴のHTTPハンドラー。
type CallHandler struct {
	service CallServiceInterface
}

// NewCallHandler はCallHandlerを生成する。
func NewCallHandler(service CallServiceInterface) *CallHandler {
	return &CallHandler{service: service}
}

// startCallRequest は通話開始リクエストのボディ。
type startCallRequest struct {
	UserID    string `json:"userId"`
	TrainerID string `json:"trainerId"`
}

// terminateCallRequest は通話終了・不在リクエストのボディ。
type terminateCallRequest struct {
	CallID string `json:"callId"`
}

// startCallResponse は通話開始レスポンス。
// 残高は10進の文字列表現で返す（浮動小数点の丸めを避けるため）。
type startCallResponse struct {
	Message               string `json:"message"`
	CallID                string `json:"callId"`
	UserWallet            string `json:"userWallet"`
	TrainerWallet         string `json:"trainerWallet"`
	AlreadyPaid           bool   `json:"alreadyPaid"`
	ReconciliationWarning bool   `json:"reconciliationWarning,omitempty"`
}

// callSessionResponse は通話セッションのAPIレスポンス。
type callSessionResponse struct {
	CallID     string     `json:"callId"`
	CallerID   string     `json:"callerId"`
	ReceiverID string     `json:"receiverId"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// eligibilityResponse は通話可否チェックのレスポンス。
type eligibilityResponse struct {
	CanCall    bool   `json:"canCall"`
	UserWallet string `json:"userWallet"`
	TrainerFee string `json:"trainerFee"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StartCall は通話の開始許可を処理する。
// POST /api/call/start
func (h *CallHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.UserID == "" || req.TrainerID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("userIdとtrainerIdは必須です"))
		return
	}

	result, err := h.service.StartCall(r.Context(), req.UserID, req.TrainerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(startCallResponse{
		Message:               "通話を開始しました。",
		CallID:                result.Session.ID,
		UserWallet:            result.CallerWallet.String(),
		TrainerWallet:         result.ReceiverWallet.String(),
		AlreadyPaid:           result.AlreadyPaid,
		ReconciliationWarning: result.ReconciliationWarning,
	})
}

// EndCall は通話の正常終了を処理する。
// POST /api/call/end
func (h *CallHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.service.EndCall)
}

// MarkMissed は不在着信の記録を処理する。
// POST /api/call/missed
func (h *CallHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.service.MarkMissed)
}

func (h *CallHandler) terminate(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*model.CallSession, error)) {
	var req terminateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.CallID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("callIdは必須です"))
		return
	}

	session, err := fn(r.Context(), req.CallID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCallSessionResponse(session))
}

// CheckEligibility は残高と免除ウィンドウに基づく通話可否を返す。
// GET /api/call/check/{userId}/{trainerId}
func (h *CallHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	trainerID := chi.URLParam(r, "trainerId")

	eligibility, err := h.service.CheckEligibility(r.Context(), userID, trainerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(eligibilityResponse{
		CanCall:    eligibility.CanCall,
		UserWallet: eligibility.CallerWallet.String(),
		TrainerFee: eligibility.TrainerFee.String(),
	})
}

// CallerHistory は発信者としての通話履歴を返す。
// GET /api/call/user/{userId}
func (h *CallHandler) CallerHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, h.service.CallerHistory, chi.URLParam(r, "userId"))
}

// ReceiverHistory は受信者としての通話履歴を返す。
// GET /api/call/trainer/{trainerId}
func (h *CallHandler) ReceiverHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, h.service.ReceiverHistory, chi.URLParam(r, "trainerId"))
}

func (h *CallHandler) history(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) ([]*model.CallSession, error), id string) {
	sessions, err := fn(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 履歴なしは空配列（nullではなく）
	resp := make([]callSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, toCallSessionResponse(session))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- ヘルパー関数 ---

// toCallSessionResponse はmodel.CallSessionからAPIレスポンスに変換する。
func toCallSessionResponse(session *model.CallSession) callSessionResponse {
	return callSessionResponse{
		CallID:     session.ID,
		CallerID:   session.CallerID,
		ReceiverID: session.ReceiverID,
		Status:     string(session.Status),
		StartedAt:  session.StartedAt,
		EndedAt:    session.EndedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeTrainerNotFound, model.ErrCodeCallNotFound:
		return http.StatusNotFound
	case model.ErrCodeInsufficientBalance:
		return http.StatusForbidden
	case model.ErrCodeSettlementFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
