// Package entry はスキャン元ごとの候補を統一エントリ表現へ正規化する。
// エントリIDの決定的な導出もここで行う。
package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// untitledFallback はタイトルが空の場合の表示名。
const untitledFallback = "(untitled)"

// EntryID はエントリの決定的IDを導出する。
// アカウントID・ソース種別・ソース内の自然キーの連結に対するSHA-256で、
// 同じ予定を何度取り込んでも同じIDになる。IDが安定していることで
// 再スキャンが重複行ではなく上書きになる。
func EntryID(accountID string, kind model.SourceKind, naturalKey string) string {
	sum := sha256.Sum256([]byte(accountID + "|" + string(kind) + "|" + naturalKey))
	return hex.EncodeToString(sum[:])
}

// NormalizeCalendar はカレンダー由来の候補を統一エントリへ変換する。
// 自然キーにはソース側のイベントIDを用いる。DOM走査由来の候補は
// 安定したイベントIDを持たないことがあり、その場合はタイトルと
// 開始時刻の組を自然キーとする。
func NormalizeCalendar(accountID string, cand model.CalendarCandidate, now time.Time) *model.CalendarEntry {
	title := strings.TrimSpace(cand.Title)
	if title == "" {
		title = untitledFallback
	}

	naturalKey := cand.ExternalEventID
	if naturalKey == "" {
		naturalKey = cand.Title + "|" + cand.Start.Format(time.RFC3339)
	}

	start, end := cand.Start, cand.End
	if cand.AllDay {
		start, end = allDayBounds(cand.Start, cand.End)
	}

	status := model.EntryStatusConfirmed
	if isTentativeRSVP(cand.RSVPState) {
		status = model.EntryStatusTentative
	}

	return &model.CalendarEntry{
		ID:        EntryID(accountID, model.SourceKindCalendar, naturalKey),
		AccountID: accountID,
		Title:     title,
		StartAt:   start,
		EndAt:     end,
		AllDay:    cand.AllDay,
		Status:    status,
		Source: model.EntrySource{
			Kind: model.SourceKindCalendar,
			Calendar: &model.CalendarSource{
				FeedName:        cand.FeedName,
				ExternalEventID: cand.ExternalEventID,
				Location:        cand.Location,
				RSVPState:       cand.RSVPState,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeEmail はメール由来の分類結果を統一エントリへ変換する。
// 自然キーにはメッセージIDを用いる。時刻が抽出できなかった候補は
// 終日エントリとして扱う。確定状態はカレンダーソース由来の予定に
// 限られるため、メール由来は分類確信度に関わらず常に仮予定になる。
func NormalizeEmail(accountID string, cand model.EmailCandidate, cls *model.MeetingClassification, now time.Time) *model.CalendarEntry {
	title := strings.TrimSpace(cls.Title)
	if title == "" {
		title = untitledFallback
	}

	var start, end time.Time
	allDay := false
	if cls.HasTime {
		start = time.Date(cls.Date.Year(), cls.Date.Month(), cls.Date.Day(),
			cls.Hour, cls.Minute, 0, 0, time.Local)
		duration := time.Duration(cls.DurationMinutes) * time.Minute
		if duration <= 0 {
			duration = time.Hour
		}
		end = start.Add(duration)
	} else {
		endDate := cls.Date
		if cls.EndDate != nil {
			endDate = *cls.EndDate
		}
		start, end = allDayBounds(cls.Date, endDate)
		allDay = true
	}

	return &model.CalendarEntry{
		ID:        EntryID(accountID, model.SourceKindEmail, cand.MessageID),
		AccountID: accountID,
		Title:     title,
		StartAt:   start,
		EndAt:     end,
		AllDay:    allDay,
		Status:    model.EntryStatusTentative,
		Source: model.EntrySource{
			Kind: model.SourceKindEmail,
			Email: &model.EmailSource{
				Subject:            cand.Subject,
				Snippet:            cand.Snippet,
				ThreadID:           cand.MessageID,
				EmailAt:            cand.ReceivedAt,
				ClassifierEvidence: evidence(cls),
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// allDayBounds は終日エントリの区間を計算する。
// 開始は開始日の00:00:00、終了は終了日を含めた23:59:59とする。
// 終了日が開始日より前の場合は開始日1日分の区間になる。
func allDayBounds(start, end time.Time) (time.Time, time.Time) {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.Local)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.Local)
	if endDay.Before(startDay) {
		endDay = startDay
	}
	return startDay, endDay.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
}

// isTentativeRSVP はRSVP状態が未確定を示すかを返す。
func isTentativeRSVP(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "tentative", "needs-action", "needsaction", "maybe":
		return true
	}
	return false
}

// evidence は分類の根拠スパンを保存用の1行にまとめる。
func evidence(cls *model.MeetingClassification) string {
	parts := make([]string, 0, 2)
	if cls.DateSpan != "" {
		parts = append(parts, "date:"+cls.DateSpan)
	}
	if cls.TimeSpan != "" {
		parts = append(parts, "time:"+cls.TimeSpan)
	}
	return strings.Join(parts, " ")
}
