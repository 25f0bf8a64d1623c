package signaling

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler はシグナリングチャネルへのWebSocketアップグレードを処理する。
type Handler struct {
	broker   *Broker
	cfg      ConnConfig
	upgrader websocket.Upgrader
}

// NewHandler はHandlerを生成する。
// オリジン検査はAPIゲートウェイ側のCORS設定に委ねるため、ここでは全て許可する。
func NewHandler(broker *Broker, cfg ConnConfig, readBufferSize, writeBufferSize int) *Handler {
	return &Handler{
		broker: broker,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP は接続をWebSocketにアップグレードし、読み取りループを開始する。
// GET /ws
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合はupgrader自身がエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := NewConn(ws, h.broker, h.cfg)
	h.broker.AddConnection(conn)

	slog.Info("signaling connection opened", slog.String("connection_id", conn.ID()))
	go conn.Run()
}
