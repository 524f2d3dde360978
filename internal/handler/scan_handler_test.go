package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// mockScanController はテスト用のスキャン制御モック。
type mockScanController struct {
	startFunc  func(ctx context.Context, lookbackDays int) (model.ScanState, error)
	pauseFunc  func() (model.ScanState, error)
	cancelFunc func() (model.ScanState, error)
	statusFunc func() model.ScanState
}

func (m *mockScanController) Start(ctx context.Context, lookbackDays int) (model.ScanState, error) {
	return m.startFunc(ctx, lookbackDays)
}
func (m *mockScanController) Pause() (model.ScanState, error)  { return m.pauseFunc() }
func (m *mockScanController) Cancel() (model.ScanState, error) { return m.cancelFunc() }
func (m *mockScanController) Status() model.ScanState          { return m.statusFunc() }

func scanningState() model.ScanState {
	return model.ScanState{
		ScanID:    "scan-1",
		Status:    model.ScanStatusScanning,
		Phase:     model.ScanPhaseCalendar,
		StartedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.Local),
	}
}

func TestStartScan_Accepted(t *testing.T) {
	var gotLookback int
	h := NewScanHandler(&mockScanController{
		startFunc: func(_ context.Context, lookbackDays int) (model.ScanState, error) {
			gotLookback = lookbackDays
			return scanningState(), nil
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/start", strings.NewReader(`{"lookback_days": 7}`))
	rec := httptest.NewRecorder()
	h.StartScan(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if gotLookback != 7 {
		t.Errorf("lookbackDays = %d, want 7", gotLookback)
	}

	var resp scanStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Status != "scanning" || resp.ScanID != "scan-1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStartScan_EmptyBodyAllowed(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		startFunc: func(_ context.Context, lookbackDays int) (model.ScanState, error) {
			if lookbackDays != 0 {
				t.Errorf("lookbackDays = %d, want 0", lookbackDays)
			}
			return scanningState(), nil
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/start", nil)
	rec := httptest.NewRecorder()
	h.StartScan(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestStartScan_AlreadyScanningConflict(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		startFunc: func(_ context.Context, _ int) (model.ScanState, error) {
			return scanningState(), model.NewAlreadyScanningError()
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/start", nil)
	rec := httptest.NewRecorder()
	h.StartScan(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp apiErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != model.ErrCodeAlreadyScanning {
		t.Errorf("code = %s, want ALREADY_SCANNING", resp.Code)
	}
}

func TestStartScan_NoAccountsPreconditionFailed(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		startFunc: func(_ context.Context, _ int) (model.ScanState, error) {
			return model.IdleScanState(), model.NewNoAccountsError()
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/start", nil)
	rec := httptest.NewRecorder()
	h.StartScan(rec, req)

	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
}

func TestPauseScan_NotRunningConflict(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		pauseFunc: func() (model.ScanState, error) {
			return model.IdleScanState(), model.NewScanNotRunningError()
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/pause", nil)
	rec := httptest.NewRecorder()
	h.PauseScan(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCancelScan_OK(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		cancelFunc: func() (model.ScanState, error) {
			return scanningState(), nil
		},
	})

	req := httptest.NewRequest("POST", "/api/scan/cancel", nil)
	rec := httptest.NewRecorder()
	h.CancelScan(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetStatus_ReturnsSnapshot(t *testing.T) {
	h := NewScanHandler(&mockScanController{
		statusFunc: func() model.ScanState {
			state := scanningState()
			state.Progress = model.ScanProgress{Current: 2, Total: 3, Label: "work account"}
			return state
		},
	})

	req := httptest.NewRequest("GET", "/api/scan/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp scanStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Progress.Current != 2 || resp.Progress.Total != 3 {
		t.Errorf("progress = %+v", resp.Progress)
	}
}
