package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// mockAccountRepo はテスト用のアカウントリポジトリ。
type mockAccountRepo struct {
	accounts []*model.Account
	listErr  error
}

func (m *mockAccountRepo) List(_ context.Context) ([]*model.Account, error) {
	return m.accounts, m.listErr
}
func (m *mockAccountRepo) FindByID(_ context.Context, _ string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) FindByAddress(_ context.Context, _ string) (*model.Account, error) {
	return nil, nil
}
func (m *mockAccountRepo) Create(_ context.Context, _ *model.Account) error     { return nil }
func (m *mockAccountRepo) DeleteByID(_ context.Context, _ string) error         { return nil }

// mockEntryRepo はテスト用のインメモリエントリリポジトリ。
type mockEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*model.CalendarEntry
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: make(map[string]*model.CalendarEntry)}
}

func (m *mockEntryRepo) Upsert(_ context.Context, e *model.CalendarEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *e
	m.entries[e.ID] = &clone
	return nil
}

func (m *mockEntryRepo) ListAll(_ context.Context) ([]*model.CalendarEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CalendarEntry
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockEntryRepo) ListByRange(_ context.Context, _, _ time.Time) ([]*model.CalendarEntry, error) {
	return nil, nil
}

func (m *mockEntryRepo) DeleteByAccountAndKind(_ context.Context, accountID string, kind model.SourceKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.AccountID == accountID && e.Source.Kind == kind {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *mockEntryRepo) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*model.CalendarEntry)
	return nil
}

func (m *mockEntryRepo) UpdateConflictIDs(_ context.Context, entryID string, conflictIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[entryID]; ok {
		e.ConflictIDs = conflictIDs
	}
	return nil
}

// countByKind は保存済みエントリをアカウントとソース種別で数える。
func (m *mockEntryRepo) countByKind(accountID string, kind model.SourceKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.AccountID == accountID && e.Source.Kind == kind {
			n++
		}
	}
	return n
}

// mockCalendarScraper はテスト用のカレンダースクレイパー。
type mockCalendarScraper struct {
	scrapeFunc func(ctx context.Context, account *model.Account) ([]model.CalendarCandidate, error)
	nextFunc   func(ctx context.Context, account *model.Account) error
}

func (m *mockCalendarScraper) ScrapeCalendar(ctx context.Context, account *model.Account) ([]model.CalendarCandidate, error) {
	return m.scrapeFunc(ctx, account)
}
func (m *mockCalendarScraper) NavigateNext(ctx context.Context, account *model.Account) error {
	if m.nextFunc != nil {
		return m.nextFunc(ctx, account)
	}
	return nil
}

// mockEmailScraper はテスト用のメールスクレイパー。
type mockEmailScraper struct {
	scrapeFunc func(ctx context.Context, account *model.Account, lookbackDays int) ([]model.EmailCandidate, error)
}

func (m *mockEmailScraper) ScrapeEmail(ctx context.Context, account *model.Account, lookbackDays int) ([]model.EmailCandidate, error) {
	return m.scrapeFunc(ctx, account, lookbackDays)
}

// mockClassifier はテスト用の分類器。
type mockClassifier struct {
	classifyFunc func(ctx context.Context, cand model.EmailCandidate) (*model.MeetingClassification, error)
}

func (m *mockClassifier) Classify(ctx context.Context, cand model.EmailCandidate) (*model.MeetingClassification, error) {
	return m.classifyFunc(ctx, cand)
}

// waitNotifier は終端状態への遷移と完了通知をチャネルで受け取るNotifier。
// 完了通知はcompleteで終わったスキャンにだけ届くため、終端の検出には
// 状態変更通知を使う。
type waitNotifier struct {
	done     chan model.ScanState
	complete chan model.ScanState
}

func newWaitNotifier() *waitNotifier {
	return &waitNotifier{
		done:     make(chan model.ScanState, 1),
		complete: make(chan model.ScanState, 1),
	}
}

func (n *waitNotifier) ScanStatusChanged(state model.ScanState) {
	switch state.Status {
	case model.ScanStatusComplete, model.ScanStatusCancelled, model.ScanStatusError:
		select {
		case n.done <- state:
		default:
		}
	}
}

func (n *waitNotifier) NewEntry(*model.CalendarEntry) {}

func (n *waitNotifier) ScanComplete(state model.ScanState) {
	select {
	case n.complete <- state:
	default:
	}
}

func (n *waitNotifier) wait(t *testing.T) model.ScanState {
	t.Helper()
	select {
	case state := <-n.done:
		return state
	case <-time.After(5 * time.Second):
		t.Fatal("スキャンの終了待ちがタイムアウトした")
		return model.ScanState{}
	}
}

// waitComplete は完了通知を待つ。completeで終わるスキャンにだけ使う。
func (n *waitNotifier) waitComplete(t *testing.T) model.ScanState {
	t.Helper()
	select {
	case state := <-n.complete:
		return state
	case <-time.After(5 * time.Second):
		t.Fatal("スキャンの完了通知がタイムアウトした")
		return model.ScanState{}
	}
}

func testAccount(id, address string) *model.Account {
	return &model.Account{
		ID:          id,
		DisplayName: id,
		Address:     address,
		Provider:    model.ProviderCalendarWebUI,
	}
}

func calendarCandidates(prefix string, n int) []model.CalendarCandidate {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	out := make([]model.CalendarCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.CalendarCandidate{
			ExternalEventID: prefix + "-evt-" + strings.Repeat("x", i+1),
			Title:           prefix + " event " + strings.Repeat("x", i+1),
			Start:           base.Add(time.Duration(i) * time.Hour),
			End:             base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
		})
	}
	return out
}

func meetingMessage(id string) model.EmailCandidate {
	return model.EmailCandidate{
		MessageID:  id,
		Subject:    "Sync with Bob",
		Snippet:    "Can we meet on March 3?",
		ReceivedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.Local),
	}
}

func meetingClassification() *model.MeetingClassification {
	return &model.MeetingClassification{
		IsMeeting:       true,
		Title:           "Sync with Bob",
		Date:            time.Date(2026, 3, 3, 0, 0, 0, 0, time.Local),
		HasTime:         true,
		Hour:            10,
		Minute:          0,
		DurationMinutes: 60,
		Confidence:      model.ConfidenceMedium,
	}
}

func defaultOptions() Options {
	return Options{
		LookbackDays:    14,
		CalendarPeriods: 1,
		Retry:           RetryPolicy{Attempts: 2, Delay: time.Millisecond},
	}
}

func TestStart_NoAccountsRejected(t *testing.T) {
	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{},
		Entries:  newMockEntryRepo(),
		Logger:   testLogger(),
	}, defaultOptions())

	_, err := ctrl.Start(context.Background(), 0)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoAccounts {
		t.Fatalf("err = %v, want NO_ACCOUNTS", err)
	}
	if ctrl.Status().Status != model.ScanStatusIdle {
		t.Errorf("拒否後はidleへ戻るべき: %s", ctrl.Status().Status)
	}
}

func TestStart_RejectedWhileActive(t *testing.T) {
	block := make(chan struct{})
	notifier := newWaitNotifier()
	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{testAccount("a1", "a1@example.com")}},
		Entries:  newMockEntryRepo(),
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account) ([]model.CalendarCandidate, error) {
				<-block
				return nil, nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				return nil, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			return nil, nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("1回目のStartが失敗: %v", err)
	}

	_, err := ctrl.Start(context.Background(), 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyScanning {
		t.Fatalf("err = %v, want ALREADY_SCANNING", err)
	}

	close(block)
	notifier.wait(t)
}

func TestScan_FullRunSavesEntriesAndDetectsConflicts(t *testing.T) {
	repo := newMockEntryRepo()
	notifier := newWaitNotifier()

	// 同時刻に重なる2つのイベントを返し、競合解析まで通す
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{testAccount("a1", "a1@example.com")}},
		Entries:  repo,
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account) ([]model.CalendarCandidate, error) {
				return []model.CalendarCandidate{
					{ExternalEventID: "e1", Title: "Standup", Start: base, End: base.Add(time.Hour)},
					{ExternalEventID: "e2", Title: "Review", Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)},
				}, nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				return []model.EmailCandidate{meetingMessage("m1")}, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			return meetingClassification(), nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	final := notifier.wait(t)
	if final.Status != model.ScanStatusComplete {
		t.Fatalf("final status = %s, want complete (error=%s)", final.Status, final.ErrorMessage)
	}

	// 完了通知には取り込んだ件数のサマリが載る（カレンダー2 + メール1）
	summary := notifier.waitComplete(t)
	if !strings.Contains(summary.Progress.Label, "3件") {
		t.Errorf("完了サマリに保存件数が含まれるべき: Label = %q", summary.Progress.Label)
	}

	if got := repo.countByKind("a1", model.SourceKindCalendar); got != 2 {
		t.Errorf("カレンダーエントリ数 = %d, want 2", got)
	}
	if got := repo.countByKind("a1", model.SourceKindEmail); got != 1 {
		t.Errorf("メールエントリ数 = %d, want 1", got)
	}

	// 重なる2イベントは競合解析で相互リンクされる
	all, _ := repo.ListAll(context.Background())
	conflicting := 0
	for _, e := range all {
		if len(e.ConflictIDs) > 0 {
			conflicting++
		}
	}
	if conflicting < 2 {
		t.Errorf("競合リンクされたエントリ = %d, want >= 2", conflicting)
	}
}

func TestScan_CancelAfterCalendarPhaseSkipsEmail(t *testing.T) {
	repo := newMockEntryRepo()
	notifier := newWaitNotifier()
	var ctrl *Controller

	classified := false
	ctrl = NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{
			testAccount("a1", "a1@example.com"),
			testAccount("a2", "a2@example.com"),
		}},
		Entries: repo,
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account) ([]model.CalendarCandidate, error) {
				return calendarCandidates("a1", 2), nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				// アカウント1のカレンダーフェーズ完了後にキャンセルを要求する。
				// 走査自体は成功するが、以降の項目処理は行われない。
				ctrl.Cancel()
				return []model.EmailCandidate{meetingMessage("m1")}, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			classified = true
			return meetingClassification(), nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	final := notifier.wait(t)
	if final.Status != model.ScanStatusCancelled {
		t.Fatalf("final status = %s, want cancelled", final.Status)
	}

	// キャンセル終了には完了通知を送らない
	select {
	case state := <-notifier.complete:
		t.Errorf("キャンセルされたスキャンが完了通知を送ってはならない: status = %s", state.Status)
	default:
	}

	// アカウント1のカレンダーエントリは残り、メールエントリは作られない
	if got := repo.countByKind("a1", model.SourceKindCalendar); got != 2 {
		t.Errorf("a1のカレンダーエントリ = %d, want 2", got)
	}
	if got := repo.countByKind("a1", model.SourceKindEmail); got != 0 {
		t.Errorf("a1のメールエントリ = %d, want 0", got)
	}
	if classified {
		t.Error("キャンセル後に分類処理が行われてはならない")
	}

	// アカウント2には一切到達しない
	if got := repo.countByKind("a2", model.SourceKindCalendar); got != 0 {
		t.Errorf("a2のカレンダーエントリ = %d, want 0", got)
	}
}

func TestScan_AccountFaultIsolation(t *testing.T) {
	repo := newMockEntryRepo()
	notifier := newWaitNotifier()

	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{
			testAccount("a1", "a1@example.com"),
			testAccount("a2", "a2@example.com"),
		}},
		Entries: repo,
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, account *model.Account) ([]model.CalendarCandidate, error) {
				if account.ID == "a1" {
					return nil, errors.New("browser context lost")
				}
				return calendarCandidates("a2", 1), nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				return nil, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			return nil, nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	final := notifier.wait(t)
	if final.Status != model.ScanStatusComplete {
		t.Fatalf("アカウント単位の失敗はスキャンを止めない: status = %s", final.Status)
	}
	if got := repo.countByKind("a2", model.SourceKindCalendar); got != 1 {
		t.Errorf("a2のカレンダーエントリ = %d, want 1", got)
	}
}

func TestScan_DuplicateAddressAccountsDeduped(t *testing.T) {
	repo := newMockEntryRepo()
	notifier := newWaitNotifier()
	var scrapedAccounts []string
	var mu sync.Mutex

	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{
			testAccount("a1", "same@example.com"),
			testAccount("a2", "same@example.com"),
		}},
		Entries: repo,
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, account *model.Account) ([]model.CalendarCandidate, error) {
				mu.Lock()
				scrapedAccounts = append(scrapedAccounts, account.ID)
				mu.Unlock()
				return nil, nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				return nil, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			return nil, nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	notifier.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if len(scrapedAccounts) != 1 || scrapedAccounts[0] != "a1" {
		t.Errorf("アドレス重複は先勝ちで除去されるべき: %v", scrapedAccounts)
	}
}

func TestPause_OnlyFromScanningAndAdvisory(t *testing.T) {
	block := make(chan struct{})
	notifier := newWaitNotifier()
	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{accounts: []*model.Account{testAccount("a1", "a1@example.com")}},
		Entries:  newMockEntryRepo(),
		CalendarScraper: &mockCalendarScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account) ([]model.CalendarCandidate, error) {
				<-block
				return nil, nil
			},
		},
		EmailScraper: &mockEmailScraper{
			scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
				return nil, nil
			},
		},
		Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
			return nil, nil
		}},
		Notifier: notifier,
		Logger:   testLogger(),
	}, defaultOptions())

	// idleからの一時停止は拒否される
	if _, err := ctrl.Pause(); err == nil {
		t.Fatal("idleからのPauseはエラーを返すべき")
	}

	if _, err := ctrl.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	state, err := ctrl.Pause()
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if state.Status != model.ScanStatusPaused {
		t.Errorf("Status = %s, want paused", state.Status)
	}

	// 一時停止中も新規スキャンは拒否される
	if _, err := ctrl.Start(context.Background(), 0); err == nil {
		t.Error("一時停止中のStartは拒否されるべき")
	}

	// 一時停止は勧告的で、実行中のスキャンは走り続けて完了する
	close(block)
	final := notifier.wait(t)
	if final.Status != model.ScanStatusComplete {
		t.Errorf("final status = %s, want complete", final.Status)
	}
}

func TestCancel_RequiresActiveScan(t *testing.T) {
	ctrl := NewController(ControllerDeps{
		Accounts: &mockAccountRepo{},
		Entries:  newMockEntryRepo(),
		Logger:   testLogger(),
	}, defaultOptions())

	_, err := ctrl.Cancel()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeScanNotRunning {
		t.Fatalf("err = %v, want SCAN_NOT_RUNNING", err)
	}
}

func TestScan_RescanOverwritesInsteadOfDuplicating(t *testing.T) {
	repo := newMockEntryRepo()

	run := func() {
		notifier := newWaitNotifier()
		ctrl := NewController(ControllerDeps{
			Accounts: &mockAccountRepo{accounts: []*model.Account{testAccount("a1", "a1@example.com")}},
			Entries:  repo,
			CalendarScraper: &mockCalendarScraper{
				scrapeFunc: func(_ context.Context, _ *model.Account) ([]model.CalendarCandidate, error) {
					return calendarCandidates("a1", 3), nil
				},
			},
			EmailScraper: &mockEmailScraper{
				scrapeFunc: func(_ context.Context, _ *model.Account, _ int) ([]model.EmailCandidate, error) {
					return nil, nil
				},
			},
			Classifier: &mockClassifier{classifyFunc: func(_ context.Context, _ model.EmailCandidate) (*model.MeetingClassification, error) {
				return nil, nil
			}},
			Notifier: notifier,
			Logger:   testLogger(),
		}, defaultOptions())

		if _, err := ctrl.Start(context.Background(), 0); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		notifier.wait(t)
	}

	run()
	run()

	if got := repo.countByKind("a1", model.SourceKindCalendar); got != 3 {
		t.Errorf("再スキャン後のエントリ数 = %d, want 3（重複しない）", got)
	}
}
