// Package model はドメインモデルを定義する。
package model

import "time"

// Confidence は会議分類の確信度を表す。
type Confidence string

const (
	// ConfidenceLow は低確信度。
	ConfidenceLow Confidence = "low"
	// ConfidenceMedium は中確信度。オラクルのYES判定やスコア3〜4で付与される。
	ConfidenceMedium Confidence = "medium"
	// ConfidenceHigh は高確信度。ヒューリスティックスコア5以上で付与される。
	ConfidenceHigh Confidence = "high"
)

// MeetingClassification はメール候補の会議分類結果を表す。
// 一過性の値であり永続化されない。日付・時刻は本文の文字列から
// 正規表現で抽出されたもののみを保持する（オラクルの自由出力は信用しない）。
type MeetingClassification struct {
	IsMeeting bool
	Title     string
	// Date は抽出された開始日（時刻成分はゼロ）。
	Date time.Time
	// EndDate は複数日にまたがる場合の終了日。単日の場合はnil。
	EndDate *time.Time
	// HasTime は時刻が抽出できたかを示す。falseの場合は終日扱い。
	HasTime bool
	Hour    int
	Minute  int
	// DurationMinutes は推定所要時間（分）。0の場合は既定値を適用する。
	DurationMinutes int
	Confidence      Confidence
	// DateSpan / TimeSpan は日付・時刻の根拠となった本文中の文字列。
	// 幻覚（本文に存在しない日時の捏造）の棄却判定に使用する。
	DateSpan string
	TimeSpan string
}
