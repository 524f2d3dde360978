// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: scan, validation, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAlreadyScanning = "ALREADY_SCANNING"
	ErrCodeNoAccounts      = "NO_ACCOUNTS"
	ErrCodeScanNotRunning  = "SCAN_NOT_RUNNING"
	ErrCodeInvalidRange    = "INVALID_RANGE"
	ErrCodeInvalidAccount  = "INVALID_ACCOUNT"
	ErrCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidFeedURL  = "INVALID_FEED_URL"
)

// NewAlreadyScanningError はスキャン実行中の開始要求に対するエラーを生成する。
func NewAlreadyScanningError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyScanning,
		Message:  "スキャンは既に実行中です。",
		Category: "scan",
		Action:   "実行中のスキャンが終了するのを待つか、キャンセルしてください。",
	}
}

// NewNoAccountsError はアカウント未設定でのスキャン開始要求に対するエラーを生成する。
func NewNoAccountsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoAccounts,
		Message:  "スキャン対象のアカウントが設定されていません。",
		Category: "scan",
		Action:   "アカウントを1件以上登録してからスキャンを開始してください。",
	}
}

// NewScanNotRunningError は実行中でないスキャンへの操作要求に対するエラーを生成する。
func NewScanNotRunningError() *APIError {
	return &APIError{
		Code:     ErrCodeScanNotRunning,
		Message:  "実行中のスキャンがありません。",
		Category: "scan",
		Action:   "スキャンを開始してから操作してください。",
	}
}

// NewInvalidRangeError は無効な期間指定に対するエラーを生成する。
func NewInvalidRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRange,
		Message:  fmt.Sprintf("無効な期間指定です: %s", reason),
		Category: "validation",
		Action:   "start/endをRFC3339形式で、start <= end となるよう指定してください。",
	}
}

// NewInvalidAccountError は無効なアカウント設定に対するエラーを生成する。
func NewInvalidAccountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAccount,
		Message:  fmt.Sprintf("無効なアカウント設定です: %s", reason),
		Category: "validation",
		Action:   "アドレスとプロバイダ種別を確認してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "account",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewInvalidFeedURLError は無効なフィードURLに対するエラーを生成する。
func NewInvalidFeedURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedURL,
		Message:  fmt.Sprintf("無効なフィードURLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる公開URLを指定してください。",
	}
}
