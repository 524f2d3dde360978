package scan

import "github.com/hitoshi/calscan/internal/model"

// Notifier はスキャンの進行を観測者へ通知するインターフェース。
// SSE経由でブラウザ拡張へ中継される。通知の送達は保証されない。
type Notifier interface {
	// ScanStatusChanged はScanStateが変化するたびに呼ばれる。
	ScanStatusChanged(state model.ScanState)

	// NewEntry はエントリが保存されるたびに呼ばれる。
	NewEntry(entry *model.CalendarEntry)

	// ScanComplete はスキャンがcompleteで終わったときに呼ばれる。
	// キャンセルやエラーでの終端はScanStatusChangedのみで通知される。
	ScanComplete(state model.ScanState)
}

// NopNotifier は何もしないNotifier。
type NopNotifier struct{}

func (NopNotifier) ScanStatusChanged(model.ScanState)  {}
func (NopNotifier) NewEntry(*model.CalendarEntry)      {}
func (NopNotifier) ScanComplete(model.ScanState)       {}
