package scan

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	calls := 0

	err := policy.Do(context.Background(), NewToken(), testLogger(), "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_ExhaustsFixedAttempts(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	calls := 0
	wantErr := errors.New("permanent")

	err := policy.Do(context.Background(), NewToken(), testLogger(), "op", func() error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3（固定回数）", calls)
	}
}

func TestRetry_NoRetryAfterCancellation(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	tok := NewToken()
	calls := 0

	err := policy.Do(context.Background(), tok, testLogger(), "op", func() error {
		calls++
		// 1回目の実行中にキャンセルが要求される
		tok.Cancel()
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, キャンセル観測後は再試行しない", calls)
	}
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	tok := NewToken()
	tok.Cancel()
	calls := 0

	err := policy.Do(context.Background(), tok, testLogger(), "op", func() error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, キャンセル済みなら実行しない", calls)
	}
}

func TestRetry_ContextDeadlineStopsWaiting(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Delay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	calls := 0

	err := policy.Do(ctx, NewToken(), testLogger(), "op", func() error {
		calls++
		return errors.New("fail")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
