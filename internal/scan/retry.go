package scan

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy は固定回数・固定間隔の再試行ポリシー。
// バックオフは行わない。対象の外部ソースは一時的な失敗が多く、
// 間隔を伸ばすより素早く諦めて次のアカウントへ進む方が全体が速い。
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Do はfnを最大Attempts回実行する。
// キャンセルを観測した後は再試行しない。コンテキストの終了時も中断する。
func (p RetryPolicy) Do(ctx context.Context, tok *Token, logger *slog.Logger, label string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if tok.Cancelled() {
			return context.Canceled
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.Warn("操作に失敗しました。再試行します",
			slog.String("operation", label),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.Attempts),
			slog.String("error", lastErr.Error()),
		)

		if attempt < p.Attempts {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
