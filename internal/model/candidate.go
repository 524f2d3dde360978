// Package model はドメインモデルを定義する。
package model

import "time"

// CalendarCandidate は正規化前のカレンダーイベント候補を表す。
// 構造化フィードのパース結果、またはカレンダーWeb UIのスクレイプ結果から作られる。
type CalendarCandidate struct {
	// ExternalEventID はフィードのネイティブなイベント識別子。
	// スクレイプ由来の場合は空で、(Title, Start)が自然キーとなる。
	ExternalEventID string
	FeedName        string
	Title           string
	Start           time.Time
	End             time.Time
	AllDay          bool
	Location        string
	RSVPState       string
}

// EmailCandidate は正規化前のメール候補を表す。
// メールWeb UIのスクレイプ結果から作られ、会議分類器を通過して初めて
// 暫定エントリになる。
type EmailCandidate struct {
	// MessageID はメールのスレッド/メッセージ識別子。同一性判定の自然キー。
	MessageID string
	Subject   string
	From      string
	Snippet   string
	// ReceivedAt はメール自体の受信日時。年の補完と幻覚棄却の基準になる。
	ReceivedAt time.Time
}
