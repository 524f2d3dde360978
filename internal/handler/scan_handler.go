package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// ScanControllerInterface はスキャンハンドラーが必要とする制御インターフェース。
type ScanControllerInterface interface {
	// Start は新しいスキャンを開始する。実行中の場合は拒否する。
	Start(ctx context.Context, lookbackDays int) (model.ScanState, error)
	// Pause は実行中のスキャンを一時停止状態にする（勧告的）。
	Pause() (model.ScanState, error)
	// Cancel は実行中のスキャンにキャンセルを要求する。
	Cancel() (model.ScanState, error)
	// Status は現在のScanStateのスナップショットを返す。
	Status() model.ScanState
}

// ScanHandler はスキャン制御のHTTPハンドラー。
type ScanHandler struct {
	controller ScanControllerInterface
}

// NewScanHandler はScanHandlerを生成する。
func NewScanHandler(controller ScanControllerInterface) *ScanHandler {
	return &ScanHandler{controller: controller}
}

// startScanRequest はスキャン開始リクエストのボディ。ボディは省略可能。
type startScanRequest struct {
	LookbackDays int `json:"lookback_days"`
}

// scanStateResponse はScanStateのAPIレスポンス。
type scanStateResponse struct {
	ScanID       string               `json:"scan_id,omitempty"`
	Status       string               `json:"status"`
	Phase        string               `json:"phase,omitempty"`
	Progress     scanProgressResponse `json:"progress"`
	AccountID    string               `json:"account_id,omitempty"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

type scanProgressResponse struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
}

// toScanStateResponse はScanStateをAPIレスポンスへ変換する。
func toScanStateResponse(state model.ScanState) scanStateResponse {
	resp := scanStateResponse{
		ScanID:       state.ScanID,
		Status:       string(state.Status),
		Phase:        string(state.Phase),
		AccountID:    state.AccountID,
		ErrorMessage: state.ErrorMessage,
		Progress: scanProgressResponse{
			Current: state.Progress.Current,
			Total:   state.Progress.Total,
			Label:   state.Progress.Label,
		},
	}
	if !state.StartedAt.IsZero() {
		t := state.StartedAt
		resp.StartedAt = &t
	}
	return resp
}

// StartScan はスキャン開始を処理する。
// POST /api/scan/start
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	state, err := h.controller.Start(r.Context(), req.LookbackDays)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toScanStateResponse(state))
}

// PauseScan はスキャンの一時停止を処理する。
// POST /api/scan/pause
func (h *ScanHandler) PauseScan(w http.ResponseWriter, r *http.Request) {
	state, err := h.controller.Pause()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanStateResponse(state))
}

// CancelScan はスキャンのキャンセルを処理する。
// POST /api/scan/cancel
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	state, err := h.controller.Cancel()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanStateResponse(state))
}

// GetStatus は現在のスキャン状態を返す。
// GET /api/scan/status
func (h *ScanHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toScanStateResponse(h.controller.Status()))
}
