// Package model はドメインモデルを定義する。
package model

import "time"

// EntryStatus はエントリの確度を表す。
type EntryStatus string

const (
	// EntryStatusConfirmed はカレンダー（フィードまたはスクレイプ）由来の確定エントリ。
	EntryStatusConfirmed EntryStatus = "confirmed"
	// EntryStatusTentative はメール分類由来の暫定エントリ。誤りうる。
	EntryStatusTentative EntryStatus = "tentative"
)

// SourceKind はエントリの取得元種別を表す。
type SourceKind string

const (
	// SourceKindCalendar はカレンダー由来のエントリ。
	SourceKindCalendar SourceKind = "calendar"
	// SourceKindEmail はメール分類由来のエントリ。
	SourceKindEmail SourceKind = "email"
)

// CalendarSource はカレンダー由来エントリの取得元情報。
type CalendarSource struct {
	FeedName        string
	ExternalEventID string
	Location        string
	RSVPState       string
}

// EmailSource はメール分類由来エントリの取得元情報。
type EmailSource struct {
	Subject string
	Snippet string
	// ThreadID はメールのスレッド/メッセージ識別子。同一性判定の自然キー。
	ThreadID string
	// EmailAt はメール自体の受信日時。
	EmailAt time.Time
	// ClassifierEvidence は分類の根拠となった本文中の文字列スパン。
	ClassifierEvidence string
}

// EntrySource はエントリの取得元をKindで判別するタグ付きバリアント。
// Kindに対応するフィールドのみが非nilとなる。消費側はKindで網羅的に分岐する。
type EntrySource struct {
	Kind     SourceKind
	Calendar *CalendarSource
	Email    *EmailSource
}

// CalendarEntry は正規化済みのカレンダーエントリを表す。
// IDは(アカウント, 取得元種別, 自然キー)の純粋関数であり、
// 再スキャンでは同一レコードが上書きされる。
type CalendarEntry struct {
	ID        string
	AccountID string
	Title     string
	StartAt   time.Time
	EndAt     time.Time
	AllDay    bool
	Status    EntryStatus
	Source    EntrySource
	// ConflictIDs は時間帯が重複する他エントリのID一覧。
	// 常に対称閉包が保たれる（AがBを含むならBもAを含む）。
	ConflictIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overlaps は半開区間[StartAt, EndAt)同士の重複判定を行う。
// 終了と開始が一致する連続予定は重複としない。
func (e *CalendarEntry) Overlaps(other *CalendarEntry) bool {
	return e.StartAt.Before(other.EndAt) && e.EndAt.After(other.StartAt)
}
