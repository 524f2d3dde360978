package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SSRFValidator はフィードURL検証と安全なHTTPクライアント生成のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// FeedFetcher は構造化フィードのHTTP取得とパースを行う。
// SSRF検証済みのクライアントでフィード本文を取得し、
// サイズ上限を適用した上でパーサーに渡す。
type FeedFetcher struct {
	ssrfGuard   SSRFValidator
	parser      *Parser
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewFeedFetcher はFeedFetcherの新しいインスタンスを生成する。
func NewFeedFetcher(
	ssrfGuard SSRFValidator,
	parser *Parser,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *FeedFetcher {
	return &FeedFetcher{
		ssrfGuard:   ssrfGuard,
		parser:      parser,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードURLからイベント候補を取得する。
// 取得失敗はエラーとして返し、リトライは呼び出し元のリトライポリシーに委ねる。
func (f *FeedFetcher) Fetch(ctx context.Context, feedURL string) ([]Event, error) {
	start := time.Now()

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(feedURL); err != nil {
		f.logger.Error("フィードURLのSSRF検証に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "Calscan/1.0 Calendar Aggregator")
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("フィードのHTTPリクエストに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("フィードがエラーステータスを返しました",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("フィードがステータス %d を返しました", resp.StatusCode)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	events, err := f.parser.Parse(body)
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	f.logger.Info("フィードの取得が完了しました",
		slog.String("feed_url", feedURL),
		slog.Int("event_count", len(events)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return events, nil
}
