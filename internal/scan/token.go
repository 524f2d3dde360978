package scan

import "sync/atomic"

// Token は協調的キャンセルのためのトークン。
// フェーズ境界と項目ごとの反復の合間にポーリングされる。
// 実行中の外部呼び出しを中断する強制力はない。
type Token struct {
	cancelled atomic.Bool
}

// NewToken はキャンセル未要求のトークンを生成する。
func NewToken() *Token {
	return &Token{}
}

// Cancel はキャンセルを要求する。複数回呼んでも安全。
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled はキャンセルが要求されたかを返す。
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}
