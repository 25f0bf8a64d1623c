// Package presence はユーザーIDと接続IDの対応を管理するインメモリレジストリを提供する。
//
// レジストリはプロセスローカルな状態であり、再起動をまたいで保持されない。
// 複数インスタンス構成では外部のpub/subまたはsticky routingが必要になる
// （このコアのスコープ外）。
package presence

import "sync"

// Registry はユーザーIDから接続IDへのマッピングを保持する。
// 全接続のregister/resolve/removeが並行に呼ばれるため、内部をRWMutexで保護する。
type Registry struct {
	mu    sync.RWMutex
	users map[string]string // userID -> connectionID
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]string),
	}
}

// Register はuserIDをconnectionIDに無条件で対応付ける。
// 同一ユーザーの既存エントリは上書きされる（再接続サポートのため最後の登録が勝つ）。
// 上書きされた旧接続は閉じられず、このレジストリ経由では到達不能になるだけ。
func (r *Registry) Register(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = connectionID
}

// Resolve はuserIDに対応する接続IDを返す。
// 見つからない場合はokがfalseになる。これはエラーではなく「現在到達不能」を意味する。
func (r *Registry) Resolve(userID string) (connectionID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connectionID, ok = r.users[userID]
	return connectionID, ok
}

// Remove はconnectionIDに対応付けられているユーザーのエントリを逆引きで削除する。
// 対応するエントリが無い場合（未登録の接続、または新しい登録で上書き済み）は何もしない。
// 接続クローズごとに1回呼ぶこと。
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, connID := range r.users {
		if connID == connectionID {
			delete(r.users, userID)
			return
		}
	}
}

// Count は登録中のエントリ数を返す。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
