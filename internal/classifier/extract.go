package classifier

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 日付・時刻は本文の文字列に正規表現で一致した場合のみ受理する。
// オラクルの自由出力から日時を取り込むことは決してしない（オラクルは
// もっともらしいが本文に根拠のない日時を捏造することが既知のため）。
var (
	monthPattern = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

	// monthDayRe は「Month Day[, Year]」形式（例: "March 3", "Jan 5, 2026"）。
	monthDayRe = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)

	// dayMonthRe は「Day Month[, Year]」形式（例: "3 March", "5th Jan 2026"）。
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthPattern + `)\.?(?:,?\s+(\d{4}))?\b`)

	// clockTimeRe は「HH:MM[am|pm]」形式。
	clockTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)

	// hourOnlyRe は「H am|pm」形式。am/pmを伴わない裸の数字は時刻とみなさない。
	hourOnlyRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
)

// monthsByPrefix は月名の先頭3文字からtime.Monthへの対応。
var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// dateSpan は本文から抽出された日付と、その根拠となった文字列スパン。
type dateSpan struct {
	date time.Time
	span string
}

// timeSpan は本文から抽出された時刻と、その根拠となった文字列スパン。
type timeSpan struct {
	hour   int
	minute int
	span   string
}

// extractDates は本文から日付スパンを出現順に全て抽出する。
// 年が省略された場合はメール受信時の年を補完し、結果がメール受信日より
// 過去になる場合は1年繰り上げる。解釈不能な一致はスキップする。
func extractDates(text string, receivedAt time.Time) []dateSpan {
	var spans []dateSpan
	seen := make(map[string]bool)

	appendSpan := func(month time.Month, day int, yearStr, literal string) {
		if day < 1 || day > 31 {
			return
		}
		year := receivedAt.Year()
		explicitYear := false
		if yearStr != "" {
			y, err := strconv.Atoi(yearStr)
			if err != nil {
				return
			}
			year = y
			explicitYear = true
		}

		date := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
		if date.Day() != day {
			// 存在しない日付（例: Feb 30）は月送りで変わるため棄却する
			return
		}

		// 年省略時、メール受信日より過去なら翌年へ繰り上げる
		emailDay := time.Date(receivedAt.Year(), receivedAt.Month(), receivedAt.Day(), 0, 0, 0, 0, time.Local)
		if !explicitYear && date.Before(emailDay) {
			date = date.AddDate(1, 0, 0)
		}

		key := date.Format("2006-01-02")
		if seen[key] {
			return
		}
		seen[key] = true
		spans = append(spans, dateSpan{date: date, span: literal})
	}

	for _, m := range monthDayRe.FindAllStringSubmatch(text, -1) {
		month, ok := monthsByPrefix[strings.ToLower(m[1])[:3]]
		if !ok {
			continue
		}
		day, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		appendSpan(month, day, m[3], m[0])
	}

	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		month, ok := monthsByPrefix[strings.ToLower(m[2])[:3]]
		if !ok {
			continue
		}
		appendSpan(month, day, m[3], m[0])
	}

	return spans
}

// errFabricatedTime は分単位が5の倍数でない時刻を検出したことを示す。
// このパターンは捏造シグナルとみなし、候補全体を破棄する判断材料となる。
type errFabricatedTime struct{ span string }

func (e *errFabricatedTime) Error() string {
	return "fabricated time suspected: " + e.span
}

// extractTime は本文から最初の時刻スパンを抽出する。
// 分単位が5の倍数でない場合はerrFabricatedTimeを返す。呼び出し元は
// 時刻フィールドの破棄ではなく候補全体を破棄しなければならない。
// 時刻が見つからない場合は(nil, nil)を返す。
func extractTime(text string) (*timeSpan, error) {
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		hour, err1 := strconv.Atoi(m[1])
		minute, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && hour <= 23 && minute <= 59 {
			hour = applyMeridiem(hour, m[3])
			if minute%5 != 0 {
				return nil, &errFabricatedTime{span: m[0]}
			}
			return &timeSpan{hour: hour, minute: minute, span: m[0]}, nil
		}
	}

	if m := hourOnlyRe.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err == nil && hour >= 1 && hour <= 12 {
			return &timeSpan{hour: applyMeridiem(hour, m[2]), minute: 0, span: m[0]}, nil
		}
	}

	return nil, nil
}

// applyMeridiem は12時間表記のam/pmを24時間表記に変換する。
func applyMeridiem(hour int, meridiem string) int {
	switch strings.ToLower(meridiem) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}
