package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// mockEntryReader はテスト用のエントリ読み取りモック。
type mockEntryReader struct {
	listAllFunc     func(ctx context.Context) ([]*model.CalendarEntry, error)
	listByRangeFunc func(ctx context.Context, start, end time.Time) ([]*model.CalendarEntry, error)
}

func (m *mockEntryReader) ListAll(ctx context.Context) ([]*model.CalendarEntry, error) {
	return m.listAllFunc(ctx)
}

func (m *mockEntryReader) ListByRange(ctx context.Context, start, end time.Time) ([]*model.CalendarEntry, error) {
	return m.listByRangeFunc(ctx, start, end)
}

type mockEntryClearer struct {
	deleteAllFunc func(ctx context.Context) error
}

func (m *mockEntryClearer) DeleteAll(ctx context.Context) error {
	return m.deleteAllFunc(ctx)
}

func calendarEntryFixture() *model.CalendarEntry {
	return &model.CalendarEntry{
		ID:        "entry-1",
		AccountID: "acc-1",
		Title:     "チーム定例",
		StartAt:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.Local),
		EndAt:     time.Date(2026, 1, 15, 11, 0, 0, 0, time.Local),
		Status:    model.EntryStatusConfirmed,
		Source: model.EntrySource{
			Kind: model.SourceKindCalendar,
			Calendar: &model.CalendarSource{
				FeedName:        "work",
				ExternalEventID: "ev-1",
			},
		},
	}
}

func TestListEntries_All(t *testing.T) {
	reader := &mockEntryReader{
		listAllFunc: func(_ context.Context) ([]*model.CalendarEntry, error) {
			return []*model.CalendarEntry{calendarEntryFixture()}, nil
		},
	}
	h := NewEntryHandler(reader, &mockEntryClearer{})

	req := httptest.NewRequest("GET", "/api/entries", nil)
	rec := httptest.NewRecorder()
	h.ListEntries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Entries []entryResponse `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(resp.Entries))
	}
	got := resp.Entries[0]
	if got.SourceKind != "calendar" || got.Calendar == nil || got.Calendar.FeedName != "work" {
		t.Errorf("entry = %+v", got)
	}
	if got.ConflictIDs == nil {
		t.Error("conflict_idsはnullではなく空配列であるべき")
	}
}

func TestListEntries_ByRange(t *testing.T) {
	var gotStart, gotEnd time.Time
	reader := &mockEntryReader{
		listByRangeFunc: func(_ context.Context, start, end time.Time) ([]*model.CalendarEntry, error) {
			gotStart, gotEnd = start, end
			return nil, nil
		},
	}
	h := NewEntryHandler(reader, &mockEntryClearer{})

	req := httptest.NewRequest("GET", "/api/entries?start=2026-01-01T00:00:00Z&end=2026-02-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.ListEntries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotStart.IsZero() || !gotStart.Before(gotEnd) {
		t.Errorf("range = %v - %v", gotStart, gotEnd)
	}
}

func TestListEntries_RangeValidation(t *testing.T) {
	reader := &mockEntryReader{
		listAllFunc: func(_ context.Context) ([]*model.CalendarEntry, error) { return nil, nil },
		listByRangeFunc: func(_ context.Context, _, _ time.Time) ([]*model.CalendarEntry, error) {
			return nil, nil
		},
	}
	h := NewEntryHandler(reader, &mockEntryClearer{})

	tests := []struct {
		name  string
		query string
	}{
		{"startのみ指定", "?start=2026-01-01T00:00:00Z"},
		{"endのみ指定", "?end=2026-02-01T00:00:00Z"},
		{"startの形式不正", "?start=yesterday&end=2026-02-01T00:00:00Z"},
		{"endの形式不正", "?start=2026-01-01T00:00:00Z&end=tomorrow"},
		{"startがendと同じ", "?start=2026-01-01T00:00:00Z&end=2026-01-01T00:00:00Z"},
		{"startがendより後", "?start=2026-03-01T00:00:00Z&end=2026-02-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/entries"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ListEntries(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp apiErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Code != model.ErrCodeInvalidRange {
				t.Errorf("code = %s, want INVALID_RANGE", resp.Code)
			}
		})
	}
}

func TestClearEntries_NoContent(t *testing.T) {
	cleared := false
	h := NewEntryHandler(&mockEntryReader{}, &mockEntryClearer{
		deleteAllFunc: func(_ context.Context) error {
			cleared = true
			return nil
		},
	})

	req := httptest.NewRequest("DELETE", "/api/entries", nil)
	rec := httptest.NewRecorder()
	h.ClearEntries(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !cleared {
		t.Error("DeleteAllが呼ばれていない")
	}
}
