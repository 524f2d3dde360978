// Package scraper はブラウザ拡張ブリッジへのクライアントを提供する。
// 実際のページ走査は拡張側で行われ、本パッケージはその結果を
// 型付きの候補として受け取る。
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// TextSanitizer は外部由来テキストの無害化インターフェース。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// BridgeClient はブラウザ拡張ブリッジのHTTPクライアント。
// ブリッジはローカルで動作する協調プロセスで、到達不能な場合は
// そのソースが利用不能として扱われる。取得したテキストは全て
// 信頼できない入力としてサニタイズしてから返す。
type BridgeClient struct {
	httpClient *http.Client
	sanitizer  TextSanitizer
	logger     *slog.Logger
	baseURL    string
}

// NewBridgeClient はBridgeClientを生成する。
func NewBridgeClient(sanitizer TextSanitizer, logger *slog.Logger, baseURL string, timeout time.Duration) *BridgeClient {
	return &BridgeClient{
		httpClient: &http.Client{Timeout: timeout},
		sanitizer:  sanitizer,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// scrapeRequest はブリッジへの走査要求。
type scrapeRequest struct {
	Address       string `json:"address"`
	SelectorIndex int    `json:"selector_index"`
	LookbackDays  int    `json:"lookback_days,omitempty"`
}

// calendarEventWire はブリッジが返すカレンダーイベント。
type calendarEventWire struct {
	ID        string `json:"id"`
	FeedName  string `json:"feed_name"`
	Title     string `json:"title"`
	Start     string `json:"start"`
	End       string `json:"end"`
	AllDay    bool   `json:"all_day"`
	Location  string `json:"location"`
	RSVPState string `json:"rsvp_state"`
}

// emailMessageWire はブリッジが返すメールメッセージ。
type emailMessageWire struct {
	MessageID  string `json:"message_id"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	Snippet    string `json:"snippet"`
	ReceivedAt string `json:"received_at"`
}

// ScrapeCalendar は現在表示中の期間のカレンダーイベントを取得する。
// 時刻の解釈に失敗したイベントはスキップする。
func (c *BridgeClient) ScrapeCalendar(ctx context.Context, account *model.Account) ([]model.CalendarCandidate, error) {
	var resp struct {
		Events []calendarEventWire `json:"events"`
	}
	err := c.post(ctx, "/calendar/scrape", scrapeRequest{
		Address:       account.Address,
		SelectorIndex: account.SelectorIndex,
	}, &resp)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.CalendarCandidate, 0, len(resp.Events))
	for _, ev := range resp.Events {
		start, err := time.Parse(time.RFC3339, ev.Start)
		if err != nil {
			c.logger.Warn("イベントの開始時刻を解釈できないためスキップします",
				slog.String("event_id", ev.ID),
				slog.String("start", ev.Start),
			)
			continue
		}
		end, err := time.Parse(time.RFC3339, ev.End)
		if err != nil {
			end = start.Add(time.Hour)
		}
		candidates = append(candidates, model.CalendarCandidate{
			ExternalEventID: ev.ID,
			FeedName:        c.sanitizer.SanitizeText(ev.FeedName),
			Title:           c.sanitizer.SanitizeText(ev.Title),
			Start:           start,
			End:             end,
			AllDay:          ev.AllDay,
			Location:        c.sanitizer.SanitizeText(ev.Location),
			RSVPState:       ev.RSVPState,
		})
	}

	return candidates, nil
}

// NavigateNext はカレンダー表示を次の期間へ進める。
func (c *BridgeClient) NavigateNext(ctx context.Context, account *model.Account) error {
	return c.post(ctx, "/calendar/next", scrapeRequest{
		Address:       account.Address,
		SelectorIndex: account.SelectorIndex,
	}, nil)
}

// ScrapeEmail は受信箱からメール候補を取得する。
// lookbackDaysより古いメッセージはブリッジ側で除外される。
func (c *BridgeClient) ScrapeEmail(ctx context.Context, account *model.Account, lookbackDays int) ([]model.EmailCandidate, error) {
	var resp struct {
		Messages []emailMessageWire `json:"messages"`
	}
	err := c.post(ctx, "/email/scrape", scrapeRequest{
		Address:       account.Address,
		SelectorIndex: account.SelectorIndex,
		LookbackDays:  lookbackDays,
	}, &resp)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.EmailCandidate, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		receivedAt, err := time.Parse(time.RFC3339, msg.ReceivedAt)
		if err != nil {
			c.logger.Warn("メールの受信時刻を解釈できないためスキップします",
				slog.String("message_id", msg.MessageID),
			)
			continue
		}
		candidates = append(candidates, model.EmailCandidate{
			MessageID:  msg.MessageID,
			Subject:    c.sanitizer.SanitizeText(msg.Subject),
			From:       c.sanitizer.SanitizeText(msg.From),
			Snippet:    c.sanitizer.SanitizeText(msg.Snippet),
			ReceivedAt: receivedAt,
		})
	}

	return candidates, nil
}

// post はブリッジへJSONを送信し、応答をoutへデコードする。outはnil許容。
func (c *BridgeClient) post(ctx context.Context, path string, payload any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("スクレイパーブリッジが構成されていません")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストボディの作成に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ブリッジへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ブリッジがステータス %d を返しました", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ブリッジ応答のパースに失敗しました: %w", err)
	}
	return nil
}
