package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Oracle は曖昧な候補に対する外部推論オラクルのインターフェース。
// 実装はローカル推論ランタイムへのHTTPクライアント。テスト時はモックに差し替える。
// オラクルは信頼できない協調者であり、回答は短い判定文字列としてのみ解釈する。
type Oracle interface {
	// Ask はプロンプトを送信し、応答テキストを返す。
	Ask(ctx context.Context, prompt string) (string, error)
}

// OracleClient はローカル推論ランタイム（Ollama互換のgenerateエンドポイント）の
// クライアント。呼び出しはレートリミッターで間隔制御される（候補1件につき
// 1回の呼び出しで、バッチ化はしない）。
type OracleClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	endpoint   string
	modelName  string
}

// NewOracleClient はOracleClientの新しいインスタンスを生成する。
// ratePerSecはオラクル呼び出しの上限レート。
func NewOracleClient(httpClient *http.Client, logger *slog.Logger, endpoint, modelName string, ratePerSec float64) *OracleClient {
	return &OracleClient{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		endpoint:   endpoint,
		modelName:  modelName,
	}
}

// generateRequest は推論ランタイムへのリクエストボディ。
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse は推論ランタイムからのレスポンスボディ。
type generateResponse struct {
	Response string `json:"response"`
}

// Ask はプロンプトを推論ランタイムに送信し、応答テキストを返す。
// レートリミッターの許可を待ってから送信する。
func (c *OracleClient) Ask(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("オラクル呼び出しのレート待機に失敗: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストボディの作成に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("オラクル呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("オラクルがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("オラクルがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}
