package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WalletHandler はウォレット残高照会のHTTPハンドラー。
type WalletHandler struct {
	service WalletServiceInterface
}

// NewWalletHandler はWalletHandlerを生成する。
func NewWalletHandler(service WalletServiceInterface) *WalletHandler {
	return &WalletHandler{service: service}
}

// walletResponse はウォレット残高のAPIレスポンス。
// 残高は10進の文字列表現で返す（浮動小数点の丸めを避けるため）。
type walletResponse struct {
	WalletBalance string `json:"walletBalance"`
}

// GetWallet はアカウントのウォレット残高を返す。
// GET /api/wallet/{userId}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	account, err := h.service.Wallet(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(walletResponse{
		WalletBalance: account.Wallet.String(),
	})
}
