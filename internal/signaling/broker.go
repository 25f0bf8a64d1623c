package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/fitlink/internal/metrics"
	"github.com/hitoshi/fitlink/internal/presence"
)

// Sender はブローカーから見た送信可能な接続を表す。
// Sendはfire-and-forgetで、キュー溢れや切断による送信失敗はエラーとして
// 返されるがブローカーはリトライしない。
type Sender interface {
	// ID は接続ごとに一意な接続IDを返す。
	ID() string
	// Send はイベントを接続に送信する。
	Send(env *Envelope) error
}

// Broker はプレゼンスレジストリを介してシグナリングイベントを中継する。
// イベントごとにステートレスで、通話状態は保持しない。
type Broker struct {
	registry  *presence.Registry
	collector metrics.MetricsCollector
	sanitizer *bluemonday.Policy

	mu    sync.RWMutex
	conns map[string]Sender // connectionID -> Sender
}

// NewBroker はBrokerを生成する。
// 中継するチャットメッセージ本文はStrictPolicyでHTMLタグを除去する。
func NewBroker(registry *presence.Registry, collector metrics.MetricsCollector) *Broker {
	return &Broker{
		registry:  registry,
		collector: collector,
		sanitizer: bluemonday.StrictPolicy(),
		conns:     make(map[string]Sender),
	}
}

// AddConnection は接続をブローカーの管理下に置く。
// この時点ではまだどのユーザーにも紐付いていない（registerイベント待ち）。
func (b *Broker) AddConnection(s Sender) {
	b.mu.Lock()
	b.conns[s.ID()] = s
	b.mu.Unlock()

	b.collector.ConnectionOpened()
}

// RemoveConnection は接続クローズ時の後始末を行う。
// プレゼンスエントリの削除は接続IDの逆引きで行われるため、
// 同一ユーザーが既に別接続で再登録していた場合は何も消えない。
func (b *Broker) RemoveConnection(connectionID string) {
	b.mu.Lock()
	_, known := b.conns[connectionID]
	delete(b.conns, connectionID)
	b.mu.Unlock()

	if !known {
		return
	}

	b.registry.Remove(connectionID)
	b.collector.ConnectionClosed()
}

// HandleEvent は接続から受信した1イベントを処理する。
// 不明なイベントや解析できないペイロードは破棄する（プロトコルエラーで
// 接続を切断はしない）。
func (b *Broker) HandleEvent(connectionID string, env *Envelope) {
	switch env.Event {
	case EventRegister:
		b.handleRegister(connectionID, env.Data)
	case EventCallUser:
		b.handleCallUser(env.Data)
	case EventAcceptCall:
		b.handleAcceptCall(env.Data)
	case EventSendMessage:
		b.handleSendMessage(env.Data)
	default:
		slog.Warn("unknown signaling event",
			slog.String("event", env.Event),
			slog.String("connection_id", connectionID),
		)
	}
}

func (b *Broker) handleRegister(connectionID string, data json.RawMessage) {
	var p RegisterPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		slog.Warn("invalid register payload", slog.String("connection_id", connectionID))
		return
	}

	b.registry.Register(p.UserID, connectionID)
	slog.Info("user registered on signaling channel",
		slog.String("user_id", p.UserID),
		slog.String("connection_id", connectionID),
	)
}

func (b *Broker) handleCallUser(data json.RawMessage) {
	var p CallUserPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	out := IncomingCallPayload{From: p.From, SignalData: p.SignalData, CallID: p.CallID}
	b.relayToUser(EventCallUser, p.To, EventIncomingCall, out)
}

func (b *Broker) handleAcceptCall(data json.RawMessage) {
	var p AcceptCallPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	b.relayToUser(EventAcceptCall, p.To, EventCallAccepted, CallAcceptedPayload{Signal: p.Signal})
}

func (b *Broker) handleSendMessage(data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	out := ReceiveMessagePayload{
		Sender:  p.Sender,
		Message: b.sanitizer.Sanitize(p.Message),
	}
	b.relayToUser(EventSendMessage, p.Receiver, EventReceiveMessage, out)
}

// relayToUser はユーザーIDを接続に解決してイベントを転送する。
// 宛先不在・接続消失・送信失敗はいずれも破棄として数え、送信元には通知しない
// （不在は「応答なし」としてクライアントのタイムアウトで検知される）。
func (b *Broker) relayToUser(inEvent, toUserID, outEvent string, payload any) {
	connectionID, ok := b.registry.Resolve(toUserID)
	if !ok {
		b.collector.RecordSignalingDropped(inEvent)
		return
	}

	b.mu.RLock()
	sender, ok := b.conns[connectionID]
	b.mu.RUnlock()
	if !ok {
		// レジストリが先に更新されたクローズ競合。不在と同じ扱い。
		b.collector.RecordSignalingDropped(inEvent)
		return
	}

	env, err := NewEnvelope(outEvent, payload)
	if err != nil {
		b.collector.RecordSignalingDropped(inEvent)
		return
	}

	if err := sender.Send(env); err != nil {
		b.collector.RecordSignalingDropped(inEvent)
		slog.Warn("failed to relay signaling event",
			slog.String("event", outEvent),
			slog.String("to_user_id", toUserID),
			slog.String("error", err.Error()),
		)
		return
	}

	b.collector.RecordSignalingRelayed(inEvent)
}
