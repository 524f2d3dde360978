package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/calscan/internal/conflict"
	"github.com/hitoshi/calscan/internal/entry"
	"github.com/hitoshi/calscan/internal/ics"
	"github.com/hitoshi/calscan/internal/model"
)

// run はスキャンドライバ本体。アカウントを登録順に1つずつ処理する。
// 走査の協調プロセスは単一のブラウジングコンテキストを共有するため、
// アカウントやフェーズの並列化は行わない。
//
// アカウント内のフェーズ失敗はそのアカウントに記録して次へ進む
// （部分失敗はスキャン全体を止めない）。ドライバ自体の失敗のみが
// 状態をerrorにする。
func (c *Controller) run(ctx context.Context, tok *Token, accounts []*model.Account, lookbackDays int) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("スキャンドライバで回復不能なエラーが発生しました",
				slog.Any("panic", r),
			)
			c.finish(model.ScanStatusError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	c.metrics.ScanStarted()

	for i, account := range accounts {
		if tok.Cancelled() {
			break
		}

		c.update(func(s *model.ScanState) {
			s.Phase = model.ScanPhaseCalendar
			s.AccountID = account.ID
			s.Progress = model.ScanProgress{Current: i + 1, Total: len(accounts), Label: account.DisplayName}
		})
		if err := c.calendarPhase(ctx, tok, account); err != nil {
			c.metrics.PhaseFailure("calendar")
			c.logger.Error("カレンダーフェーズに失敗しました。次の処理へ進みます",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}

		if tok.Cancelled() {
			break
		}

		c.update(func(s *model.ScanState) {
			s.Phase = model.ScanPhaseEmail
		})
		if err := c.emailPhase(ctx, tok, account, lookbackDays); err != nil {
			c.metrics.PhaseFailure("email")
			c.logger.Error("メールフェーズに失敗しました。次の処理へ進みます",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if tok.Cancelled() {
		c.finish(model.ScanStatusCancelled, "")
		return
	}

	c.update(func(s *model.ScanState) {
		s.Phase = model.ScanPhaseAnalyzing
		s.AccountID = ""
		s.Progress.Label = "競合解析"
	})
	if err := c.analyze(ctx); err != nil {
		c.metrics.PhaseFailure("analyzing")
		c.finish(model.ScanStatusError, err.Error())
		return
	}

	c.finish(model.ScanStatusComplete, "")
}

// calendarPhase は1アカウント分のカレンダー取り込みを行う。
// 候補の収集に成功した場合のみ、そのアカウントのカレンダー由来エントリを
// 消してから再投入する。収集に失敗した場合は既存エントリを保持する。
func (c *Controller) calendarPhase(ctx context.Context, tok *Token, account *model.Account) error {
	var candidates []model.CalendarCandidate
	var err error

	switch {
	case account.Provider == model.ProviderStructuredFeed && account.FeedURL != "":
		candidates, err = c.collectFromFeed(ctx, tok, account)
	case c.calendarScraper != nil:
		candidates, err = c.collectFromScraper(ctx, tok, account)
	default:
		return fmt.Errorf("アカウントにカレンダーソースがありません")
	}
	if err != nil {
		return err
	}

	if err := c.entries.DeleteByAccountAndKind(ctx, account.ID, model.SourceKindCalendar); err != nil {
		return fmt.Errorf("既存エントリの削除に失敗しました: %w", err)
	}

	saved := 0
	for _, cand := range candidates {
		if tok.Cancelled() {
			break
		}
		e := entry.NormalizeCalendar(account.ID, cand, c.now())
		if err := c.entries.Upsert(ctx, e); err != nil {
			c.logger.Error("エントリの保存に失敗しました",
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.notifier.NewEntry(e)
		c.metrics.EntrySaved(string(model.SourceKindCalendar))
		c.recordSaved()
		saved++
		c.update(func(s *model.ScanState) {
			s.Progress.Label = e.Title
		})
	}

	c.logger.Info("カレンダーフェーズが完了しました",
		slog.String("account_id", account.ID),
		slog.Int("candidate_count", len(candidates)),
		slog.Int("saved_count", saved),
	)
	return nil
}

// collectFromFeed はICSフィードから候補を収集する。
func (c *Controller) collectFromFeed(ctx context.Context, tok *Token, account *model.Account) ([]model.CalendarCandidate, error) {
	if c.feedFetcher == nil {
		return nil, fmt.Errorf("フィードフェッチャーが構成されていません")
	}

	var events []ics.Event
	err := c.opts.Retry.Do(ctx, tok, c.logger, "feed_fetch", func() error {
		var fetchErr error
		events, fetchErr = c.feedFetcher.Fetch(ctx, account.FeedURL)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	candidates := make([]model.CalendarCandidate, 0, len(events))
	for _, ev := range events {
		candidates = append(candidates, model.CalendarCandidate{
			ExternalEventID: ev.UID,
			FeedName:        account.DisplayName,
			Title:           ev.Summary,
			Start:           ev.Start,
			End:             ev.End,
			AllDay:          ev.AllDay,
			Location:        ev.Location,
			RSVPState:       strings.ToLower(ev.Status),
		})
	}
	return candidates, nil
}

// collectFromScraper はブラウザ拡張経由で複数の表示期間を走査して候補を集める。
// 期間をまたいで同じイベントが見えることがあるため、タイトルと開始時刻の
// 組で重複を除去する。
func (c *Controller) collectFromScraper(ctx context.Context, tok *Token, account *model.Account) ([]model.CalendarCandidate, error) {
	periods := c.opts.CalendarPeriods
	if periods < 1 {
		periods = 1
	}

	var candidates []model.CalendarCandidate
	seen := make(map[string]bool)

	for period := 0; period < periods; period++ {
		if tok.Cancelled() {
			break
		}

		var page []model.CalendarCandidate
		err := c.opts.Retry.Do(ctx, tok, c.logger, "calendar_scrape", func() error {
			var scrapeErr error
			page, scrapeErr = c.calendarScraper.ScrapeCalendar(ctx, account)
			return scrapeErr
		})
		if err != nil {
			return nil, fmt.Errorf("カレンダー走査に失敗しました: %w", err)
		}

		for _, cand := range page {
			key := cand.Title + "|" + cand.Start.Format(time.RFC3339)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, cand)
		}

		if period < periods-1 {
			if err := c.calendarScraper.NavigateNext(ctx, account); err != nil {
				// 期間送りに失敗しても、ここまでに集めた候補は有効
				c.logger.Warn("次の期間への移動に失敗しました",
					slog.String("account_id", account.ID),
					slog.String("error", err.Error()),
				)
				break
			}
		}
	}

	return candidates, nil
}

// emailPhase は1アカウント分のメール取り込みを行う。
// 走査に成功した場合のみ、そのアカウントのメール由来エントリを
// 消してから再投入する。
func (c *Controller) emailPhase(ctx context.Context, tok *Token, account *model.Account, lookbackDays int) error {
	if c.emailScraper == nil {
		return fmt.Errorf("メールソースが利用できません")
	}

	var messages []model.EmailCandidate
	err := c.opts.Retry.Do(ctx, tok, c.logger, "email_scrape", func() error {
		var scrapeErr error
		messages, scrapeErr = c.emailScraper.ScrapeEmail(ctx, account, lookbackDays)
		return scrapeErr
	})
	if err != nil {
		return fmt.Errorf("メール走査に失敗しました: %w", err)
	}

	if err := c.entries.DeleteByAccountAndKind(ctx, account.ID, model.SourceKindEmail); err != nil {
		return fmt.Errorf("既存エントリの削除に失敗しました: %w", err)
	}

	saved := 0
	for _, msg := range messages {
		if tok.Cancelled() {
			break
		}

		cls, err := c.classifier.Classify(ctx, msg)
		if err != nil {
			c.logger.Warn("メール候補の分類に失敗しました",
				slog.String("message_id", msg.MessageID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if cls == nil {
			continue
		}

		e := entry.NormalizeEmail(account.ID, msg, cls, c.now())
		if err := c.entries.Upsert(ctx, e); err != nil {
			c.logger.Error("エントリの保存に失敗しました",
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.notifier.NewEntry(e)
		c.metrics.EntrySaved(string(model.SourceKindEmail))
		c.recordSaved()
		saved++
		c.update(func(s *model.ScanState) {
			s.Progress.Label = e.Title
		})
	}

	c.logger.Info("メールフェーズが完了しました",
		slog.String("account_id", account.ID),
		slog.Int("message_count", len(messages)),
		slog.Int("saved_count", saved),
	)
	return nil
}

// analyze は全エントリに対して競合検出を実行し、結果を永続化する。
func (c *Controller) analyze(ctx context.Context) error {
	all, err := c.entries.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("競合解析用のエントリ取得に失敗しました: %w", err)
	}

	pairs := conflict.Detect(all)
	c.metrics.ConflictPairs(pairs)

	for _, e := range all {
		if err := c.entries.UpdateConflictIDs(ctx, e.ID, e.ConflictIDs); err != nil {
			return fmt.Errorf("競合リストの保存に失敗しました: %w", err)
		}
	}
	return nil
}
