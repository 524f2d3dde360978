// Package scan はマルチアカウントスキャンの状態機械を提供する。
// フェーズ進行、再試行、協調的キャンセル、進行通知を担う。
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calscan/internal/ics"
	"github.com/hitoshi/calscan/internal/model"
	"github.com/hitoshi/calscan/internal/repository"
)

// CalendarScraper はブラウザ拡張経由のカレンダー走査インターフェース。
type CalendarScraper interface {
	// ScrapeCalendar は現在表示中の期間のイベントを取得する。
	ScrapeCalendar(ctx context.Context, account *model.Account) ([]model.CalendarCandidate, error)
	// NavigateNext はカレンダー表示を次の期間へ進める。
	NavigateNext(ctx context.Context, account *model.Account) error
}

// EmailScraper はブラウザ拡張経由のメール走査インターフェース。
type EmailScraper interface {
	ScrapeEmail(ctx context.Context, account *model.Account, lookbackDays int) ([]model.EmailCandidate, error)
}

// FeedFetcher はICSフィードの取得インターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]ics.Event, error)
}

// MeetingClassifier はメール候補の会議分類インターフェース。
// 会議でない候補には(nil, nil)を返す。
type MeetingClassifier interface {
	Classify(ctx context.Context, cand model.EmailCandidate) (*model.MeetingClassification, error)
}

// Metrics はスキャン計測の通知先インターフェース。
type Metrics interface {
	ScanStarted()
	ScanFinished(status string, seconds float64)
	PhaseFailure(phase string)
	EntrySaved(kind string)
	ConflictPairs(count int)
}

// nopMetrics は計測を捨てるMetrics実装。
type nopMetrics struct{}

func (nopMetrics) ScanStarted()                  {}
func (nopMetrics) ScanFinished(string, float64)  {}
func (nopMetrics) PhaseFailure(string)           {}
func (nopMetrics) EntrySaved(string)             {}
func (nopMetrics) ConflictPairs(int)             {}

// Options はスキャン動作の調整値。
type Options struct {
	// LookbackDays はメールフェーズの遡及日数。
	LookbackDays int
	// CalendarPeriods はカレンダーフェーズで走査する表示期間の数。
	CalendarPeriods int
	// Retry はフェーズ内の外部I/Oに適用される再試行ポリシー。
	Retry RetryPolicy
}

// ControllerDeps はControllerの依存一式。
type ControllerDeps struct {
	Accounts        repository.AccountRepository
	Entries         repository.EntryRepository
	CalendarScraper CalendarScraper
	EmailScraper    EmailScraper
	FeedFetcher     FeedFetcher
	Classifier      MeetingClassifier
	Notifier        Notifier
	Metrics         Metrics
	Logger          *slog.Logger
}

// Controller はスキャン状態機械本体。
// プロセス全体で単一のScanStateを保持し、同時に実行できるスキャンは1つ。
// 状態の読み書きはミューテックスで直列化され、観測者にはスナップショットを返す。
type Controller struct {
	mu    sync.Mutex
	state model.ScanState
	token *Token

	// savedCount は実行中のスキャンで保存したエントリ数。完了サマリに使う。
	savedCount int

	accounts        repository.AccountRepository
	entries         repository.EntryRepository
	calendarScraper CalendarScraper
	emailScraper    EmailScraper
	feedFetcher     FeedFetcher
	classifier      MeetingClassifier
	notifier        Notifier
	metrics         Metrics
	logger          *slog.Logger
	opts            Options

	// テストから時刻を固定するために注入可能にしている
	now func() time.Time
}

// NewController はControllerを生成する。
// NotifierとMetricsはnil許容で、nilの場合は何もしない実装が使われる。
func NewController(deps ControllerDeps, opts Options) *Controller {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Controller{
		state:           model.IdleScanState(),
		accounts:        deps.Accounts,
		entries:         deps.Entries,
		calendarScraper: deps.CalendarScraper,
		emailScraper:    deps.EmailScraper,
		feedFetcher:     deps.FeedFetcher,
		classifier:      deps.Classifier,
		notifier:        deps.Notifier,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		opts:            opts,
		now:             time.Now,
	}
}

// Start は新しいスキャンを開始する。
// 実行中（scanning/paused）のスキャンがある場合はキューに積まずに拒否する。
// lookbackDaysが0以下の場合は既定値を使用する。
func (c *Controller) Start(ctx context.Context, lookbackDays int) (model.ScanState, error) {
	c.mu.Lock()
	if c.state.Active() {
		snapshot := c.state
		c.mu.Unlock()
		return snapshot, model.NewAlreadyScanningError()
	}

	// アカウント取得前に開始状態を確定させ、同時開始の競合を防ぐ
	token := NewToken()
	c.token = token
	c.savedCount = 0
	c.state = model.ScanState{
		ScanID:    uuid.NewString(),
		Status:    model.ScanStatusScanning,
		Phase:     model.ScanPhaseStarting,
		StartedAt: c.now(),
	}
	snapshot := c.state
	c.mu.Unlock()

	accounts, err := c.loadAccounts(ctx)
	if err != nil {
		c.setIdle()
		return model.IdleScanState(), fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	if len(accounts) == 0 {
		c.setIdle()
		return model.IdleScanState(), model.NewNoAccountsError()
	}

	if lookbackDays <= 0 {
		lookbackDays = c.opts.LookbackDays
	}

	c.notifier.ScanStatusChanged(snapshot)
	c.logger.Info("スキャンを開始します",
		slog.String("scan_id", snapshot.ScanID),
		slog.Int("account_count", len(accounts)),
		slog.Int("lookback_days", lookbackDays),
	)

	// 呼び出し元のリクエストが終わってもスキャンは続行する
	go c.run(context.WithoutCancel(ctx), token, accounts, lookbackDays)

	return snapshot, nil
}

// Pause は実行中のスキャンを一時停止状態にする。
// 一時停止は表示上の状態であり、実行中のループを止めるものではない。
// 新しいスキャンの開始だけを妨げる。
func (c *Controller) Pause() (model.ScanState, error) {
	c.mu.Lock()
	if c.state.Status != model.ScanStatusScanning {
		snapshot := c.state
		c.mu.Unlock()
		return snapshot, model.NewScanNotRunningError()
	}

	c.state.Status = model.ScanStatusPaused
	snapshot := c.state
	c.mu.Unlock()

	c.notifier.ScanStatusChanged(snapshot)
	return snapshot, nil
}

// Cancel は実行中のスキャンにキャンセルを要求する。
// フラグはフェーズ境界と項目ごとにポーリングされ、処理中の項目は
// 完了してからループが終了する。最終状態はcancelledになる。
func (c *Controller) Cancel() (model.ScanState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active() {
		return c.state, model.NewScanNotRunningError()
	}

	c.token.Cancel()
	snapshot := c.state
	return snapshot, nil
}

// Status は現在のScanStateのスナップショットを返す。
func (c *Controller) Status() model.ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// loadAccounts はアカウント一覧を取得し、アドレスの重複を除去する。
// 同じアドレスが複数登録されている場合は先に作成されたものが勝つ。
func (c *Controller) loadAccounts(ctx context.Context) ([]*model.Account, error) {
	all, err := c.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(all))
	deduped := make([]*model.Account, 0, len(all))
	for _, a := range all {
		if seen[a.Address] {
			c.logger.Warn("アドレスが重複するアカウントをスキップします",
				slog.String("account_id", a.ID),
				slog.String("address", a.Address),
			)
			continue
		}
		seen[a.Address] = true
		deduped = append(deduped, a)
	}
	return deduped, nil
}

// setIdle は開始処理の失敗時に状態をidleへ戻す。
func (c *Controller) setIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = model.IdleScanState()
	c.token = nil
}

// update は状態を部分的に書き換え、観測者へ通知する。
func (c *Controller) update(mutate func(s *model.ScanState)) {
	c.mu.Lock()
	mutate(&c.state)
	snapshot := c.state
	c.mu.Unlock()
	c.notifier.ScanStatusChanged(snapshot)
}

// recordSaved は完了サマリ用の保存件数を加算する。
func (c *Controller) recordSaved() {
	c.mu.Lock()
	c.savedCount++
	c.mu.Unlock()
}

// finish はスキャンを終端状態にする。completeで終わった場合のみ
// 保存件数のサマリを載せた完了通知を送る。キャンセルやエラーでの
// 終了は状態変更通知だけで伝わる。
func (c *Controller) finish(status model.ScanStatus, errMessage string) {
	c.mu.Lock()
	c.state.Status = status
	c.state.ErrorMessage = errMessage
	saved := c.savedCount
	if status == model.ScanStatusComplete {
		c.state.Phase = model.ScanPhaseComplete
		c.state.Progress.Label = fmt.Sprintf("%d件の予定を取り込みました", saved)
	}
	snapshot := c.state
	c.token = nil
	c.mu.Unlock()

	c.metrics.ScanFinished(string(status), c.now().Sub(snapshot.StartedAt).Seconds())
	c.notifier.ScanStatusChanged(snapshot)
	if status == model.ScanStatusComplete {
		c.notifier.ScanComplete(snapshot)
	}
	c.logger.Info("スキャンが終了しました",
		slog.String("scan_id", snapshot.ScanID),
		slog.String("status", string(status)),
		slog.Int("saved_count", saved),
		slog.String("error", errMessage),
	)
}
