// Package signaling はWebSocket上の通話シグナリング中継を提供する。
//
// ブローカーはイベントを転送するだけで通話状態を持たない。宛先が不在の
// イベントは黙って破棄される。配達保証はなく、不在検知は発信側クライアントの
// タイムアウトに委ねられる（リアルタイム性を優先し、サーバー側での
// キューイングや再送は行わない）。
package signaling

import "encoding/json"

// イベント名。クライアントとの間で交換されるJSONの"event"フィールドの値。
const (
	// 受信イベント
	EventRegister    = "register"
	EventCallUser    = "callUser"
	EventAcceptCall  = "acceptCall"
	EventSendMessage = "sendMessage"

	// 送信イベント
	EventIncomingCall   = "incomingCall"
	EventCallAccepted   = "callAccepted"
	EventReceiveMessage = "receiveMessage"
)

// Envelope はシグナリングチャネル上を流れる1イベントを表す。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope はペイロードをJSONにエンコードしたEnvelopeを生成する。
func NewEnvelope(event string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: data}, nil
}

// RegisterPayload はregisterイベントのペイロード。
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// CallUserPayload はcallUserイベントのペイロード。
// SignalDataはWebRTCのオファー（SDP等）で、中身には関知せずそのまま転送する。
// CallIDは通話開始許可APIが発行したセッションID（クライアント間の突き合わせ用）。
type CallUserPayload struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	SignalData json.RawMessage `json:"signalData"`
	CallID     string          `json:"callId,omitempty"`
}

// IncomingCallPayload はincomingCallイベントのペイロード。
type IncomingCallPayload struct {
	From       string          `json:"from"`
	SignalData json.RawMessage `json:"signalData"`
	CallID     string          `json:"callId,omitempty"`
}

// AcceptCallPayload はacceptCallイベントのペイロード。
type AcceptCallPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// CallAcceptedPayload はcallAcceptedイベントのペイロード。
type CallAcceptedPayload struct {
	Signal json.RawMessage `json:"signal"`
}

// SendMessagePayload はsendMessageイベントのペイロード。
type SendMessagePayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// ReceiveMessagePayload はreceiveMessageイベントのペイロード。
type ReceiveMessagePayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}
