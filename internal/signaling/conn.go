package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnConfig はWebSocket接続のタイムアウトとバッファの設定を保持する。
type ConnConfig struct {
	SendQueueSize  int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// ErrSendQueueFull は接続の送信キューが満杯でイベントを破棄したことを示す。
var ErrSendQueueFull = errors.New("signaling: send queue full")

// Conn はブローカー配下の1つのWebSocket接続を表す。
// 読み取りと書き込みはそれぞれ専用のゴルーチンで行う
// （gorilla/websocketは並行Writeを許可しないため）。
type Conn struct {
	id     string
	ws     *websocket.Conn
	broker *Broker
	cfg    ConnConfig

	send chan *Envelope
	done chan struct{}
}

// NewConn はアップグレード済みのWebSocketをラップしたConnを生成する。
// 接続IDはトランスポート層でユニークに採番される。
func NewConn(ws *websocket.Conn, broker *Broker, cfg ConnConfig) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		broker: broker,
		cfg:    cfg,
		send:   make(chan *Envelope, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
}

// ID は接続IDを返す。
func (c *Conn) ID() string {
	return c.id
}

// Send はイベントを送信キューに積む。キューが満杯の場合はブロックせずに
// 破棄してErrSendQueueFullを返す（シグナリングはリアルタイム性優先）。
func (c *Conn) Send(env *Envelope) error {
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return errors.New("signaling: connection closed")
	default:
		return ErrSendQueueFull
	}
}

// Run は読み取りループを開始し、接続が閉じるまでブロックする。
// 終了時にブローカーからの除去（プレゼンス削除を含む）を必ず1回行う。
func (c *Conn) Run() {
	go c.writeLoop()

	defer func() {
		close(c.done)
		c.broker.RemoveConnection(c.id)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("signaling connection read error",
					slog.String("connection_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("malformed signaling frame",
				slog.String("connection_id", c.id),
			)
			continue
		}

		c.broker.HandleEvent(c.id, &env)
	}
}

// writeLoop は送信キューのイベントを書き込み、定期的にpingを送る。
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
