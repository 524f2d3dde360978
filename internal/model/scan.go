// Package model はドメインモデルを定義する。
package model

import "time"

// ScanStatus はスキャン全体の状態を表す。
type ScanStatus string

const (
	// ScanStatusIdle はスキャンが一度も実行されていない、または終了済みの待機状態。
	ScanStatusIdle ScanStatus = "idle"
	// ScanStatusScanning はスキャン実行中。
	ScanStatusScanning ScanStatus = "scanning"
	// ScanStatusPaused は一時停止要求を受けた状態。
	// 実行中のスキャンは中断されず、新規スキャンの開始のみを拒否する（勧告的）。
	ScanStatusPaused ScanStatus = "paused"
	// ScanStatusCancelled はキャンセルにより終了した状態。
	ScanStatusCancelled ScanStatus = "cancelled"
	// ScanStatusError はドライバ自体の致命的エラーで終了した状態。
	ScanStatusError ScanStatus = "error"
	// ScanStatusComplete は全アカウントの処理と競合解析が完了した状態。
	ScanStatusComplete ScanStatus = "complete"
)

// ScanPhase はスキャン内の現在フェーズを表す。
type ScanPhase string

const (
	// ScanPhaseStarting はスキャン開始直後の準備フェーズ。
	ScanPhaseStarting ScanPhase = "starting"
	// ScanPhaseCalendar はカレンダー取り込みフェーズ。
	ScanPhaseCalendar ScanPhase = "calendar"
	// ScanPhaseEmail はメール取り込みフェーズ。
	ScanPhaseEmail ScanPhase = "email"
	// ScanPhaseAnalyzing は競合解析フェーズ。
	ScanPhaseAnalyzing ScanPhase = "analyzing"
	// ScanPhaseComplete は完了フェーズ。
	ScanPhaseComplete ScanPhase = "complete"
)

// ScanProgress はスキャンの進捗を表す。
type ScanProgress struct {
	// Current は処理中アイテムのインデックス（1始まり）。
	Current int
	// Total は処理対象アイテムの総数。
	Total int
	// Label は処理中アイテムの表示用ラベル。
	Label string
}

// ScanState はプロセス全体で単一のスキャン状態を表す。
// 同時にScanStatusScanningとなるスキャンは高々1つであり、
// 実行中の開始要求はキューイングされず拒否される。
type ScanState struct {
	// ScanID はスキャン試行ごとに発番される識別子。
	ScanID   string
	Status   ScanStatus
	Phase    ScanPhase
	Progress ScanProgress
	// AccountID は処理中アカウントのID。
	AccountID string
	StartedAt time.Time
	// ErrorMessage は致命的エラーで終了した場合のメッセージ。
	ErrorMessage string
}

// IdleScanState はスキャン未実行時に返す待機センチネルを生成する。
func IdleScanState() ScanState {
	return ScanState{Status: ScanStatusIdle}
}

// Active はこの状態が実行中（新規開始を拒否すべき状態）かを返す。
func (s ScanState) Active() bool {
	return s.Status == ScanStatusScanning || s.Status == ScanStatusPaused
}
