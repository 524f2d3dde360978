// Package model はドメインモデルを定義する。
package model

import "time"

// Provider はアカウントのカレンダー取得方式を表す。
type Provider string

const (
	// ProviderCalendarWebUI はカレンダーWeb UIのスクレイピングで取得する方式。
	ProviderCalendarWebUI Provider = "calendar_web_ui"
	// ProviderStructuredFeed はiCalendar形式の構造化フィードで取得する方式。
	ProviderStructuredFeed Provider = "structured_feed"
)

// Account はスキャン対象のアカウント設定を表す。
// 外部の設定UIが作成・編集し、コアは読み取り専用で扱う。
// コアによる変更は起動時の自然キー（Address）による重複排除のみ。
type Account struct {
	ID          string
	DisplayName string
	// Address はアカウントの連絡先アドレス。重複排除の自然キーとなる。
	Address string
	// SelectorIndex はマルチログインセッション内のアカウント位置。
	// スクレイパー連携先にそのまま渡される。
	SelectorIndex int
	// FeedURL は構造化フィードのURL。ProviderStructuredFeedの場合のみ使用する。
	FeedURL   string
	Provider  Provider
	CreatedAt time.Time
	UpdatedAt time.Time
}
