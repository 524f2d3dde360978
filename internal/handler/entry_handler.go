package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// EntryReader はエントリハンドラーが必要とする読み取りインターフェース。
type EntryReader interface {
	ListAll(ctx context.Context) ([]*model.CalendarEntry, error)
	ListByRange(ctx context.Context, start, end time.Time) ([]*model.CalendarEntry, error)
}

// EntryClearer は全エントリ削除のインターフェース。
type EntryClearer interface {
	DeleteAll(ctx context.Context) error
}

// EntryHandler はエントリ照会のHTTPハンドラー。
type EntryHandler struct {
	reader  EntryReader
	clearer EntryClearer
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(reader EntryReader, clearer EntryClearer) *EntryHandler {
	return &EntryHandler{reader: reader, clearer: clearer}
}

// entryResponse はエントリのAPIレスポンス。
type entryResponse struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"account_id"`
	Title       string              `json:"title"`
	StartAt     time.Time           `json:"start_at"`
	EndAt       time.Time           `json:"end_at"`
	AllDay      bool                `json:"all_day"`
	Status      string              `json:"status"`
	SourceKind  string              `json:"source_kind"`
	Calendar    *calendarSourceBody `json:"calendar,omitempty"`
	Email       *emailSourceBody    `json:"email,omitempty"`
	ConflictIDs []string            `json:"conflict_ids"`
}

type calendarSourceBody struct {
	FeedName        string `json:"feed_name"`
	ExternalEventID string `json:"external_event_id"`
	Location        string `json:"location,omitempty"`
	RSVPState       string `json:"rsvp_state,omitempty"`
}

type emailSourceBody struct {
	Subject            string    `json:"subject"`
	Snippet            string    `json:"snippet,omitempty"`
	ThreadID           string    `json:"thread_id,omitempty"`
	EmailAt            time.Time `json:"email_at"`
	ClassifierEvidence string    `json:"classifier_evidence,omitempty"`
}

// toEntryResponse はCalendarEntryをAPIレスポンスへ変換する。
func toEntryResponse(e *model.CalendarEntry) entryResponse {
	resp := entryResponse{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Title:       e.Title,
		StartAt:     e.StartAt,
		EndAt:       e.EndAt,
		AllDay:      e.AllDay,
		Status:      string(e.Status),
		SourceKind:  string(e.Source.Kind),
		ConflictIDs: e.ConflictIDs,
	}
	if resp.ConflictIDs == nil {
		resp.ConflictIDs = []string{}
	}
	if cal := e.Source.Calendar; cal != nil {
		resp.Calendar = &calendarSourceBody{
			FeedName:        cal.FeedName,
			ExternalEventID: cal.ExternalEventID,
			Location:        cal.Location,
			RSVPState:       cal.RSVPState,
		}
	}
	if email := e.Source.Email; email != nil {
		resp.Email = &emailSourceBody{
			Subject:            email.Subject,
			Snippet:            email.Snippet,
			ThreadID:           email.ThreadID,
			EmailAt:            email.EmailAt,
			ClassifierEvidence: email.ClassifierEvidence,
		}
	}
	return resp
}

// ListEntries はエントリ一覧を返す。
// GET /api/entries?start=RFC3339&end=RFC3339
// startとendは両方指定するか両方省略する。省略時は全件を返す。
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	startParam := r.URL.Query().Get("start")
	endParam := r.URL.Query().Get("end")

	var entries []*model.CalendarEntry
	var err error

	switch {
	case startParam == "" && endParam == "":
		entries, err = h.reader.ListAll(r.Context())
	case startParam != "" && endParam != "":
		start, parseErr := time.Parse(time.RFC3339, startParam)
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRangeError("startの形式が不正です"))
			return
		}
		end, parseErr := time.Parse(time.RFC3339, endParam)
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRangeError("endの形式が不正です"))
			return
		}
		if !start.Before(end) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRangeError("startはendより前でなければなりません"))
			return
		}
		entries, err = h.reader.ListByRange(r.Context(), start, end)
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRangeError("startとendは両方指定してください"))
		return
	}

	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// ClearEntries は全エントリを削除する。
// DELETE /api/entries
func (h *EntryHandler) ClearEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.clearer.DeleteAll(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
