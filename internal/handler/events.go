package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/calscan/internal/model"
)

// sseEvent はSSEで配信する1イベント。
type sseEvent struct {
	name string
	data any
}

// SSEHub はスキャンの進行をServer-Sent Eventsで配信するハブ。
// scanパッケージのNotifierとして登録され、受け取った通知を
// 接続中の全クライアントへ中継する。配信は送達保証のない
// ベストエフォートで、遅いクライアントへのイベントは破棄される。
type SSEHub struct {
	mu      sync.Mutex
	clients map[chan sseEvent]bool
	logger  *slog.Logger
}

// NewSSEHub はSSEHubを生成する。
func NewSSEHub(logger *slog.Logger) *SSEHub {
	return &SSEHub{
		clients: make(map[chan sseEvent]bool),
		logger:  logger,
	}
}

// ScanStatusChanged はスキャン状態の変化を配信する。
func (h *SSEHub) ScanStatusChanged(state model.ScanState) {
	h.broadcast(sseEvent{name: "scan_status", data: toScanStateResponse(state)})
}

// NewEntry はエントリの保存を配信する。
func (h *SSEHub) NewEntry(entry *model.CalendarEntry) {
	h.broadcast(sseEvent{name: "new_entry", data: toEntryResponse(entry)})
}

// ScanComplete はスキャンの終了を配信する。
func (h *SSEHub) ScanComplete(state model.ScanState) {
	h.broadcast(sseEvent{name: "scan_complete", data: toScanStateResponse(state)})
}

// ClientCount は接続中のクライアント数を返す。テスト用。
func (h *SSEHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast は全クライアントへイベントを送る。
// バッファが埋まっているクライアントへの送信はスキップする。
func (h *SSEHub) broadcast(ev sseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ServeHTTP はSSEストリームを配信する。
// GET /api/events
func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan sseEvent, 16)
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			payload, err := json.Marshal(ev.data)
			if err != nil {
				h.logger.Error("SSEペイロードの生成に失敗しました",
					slog.String("event", ev.name),
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, payload)
			flusher.Flush()
		}
	}
}
