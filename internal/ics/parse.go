// Package ics はiCalendar形式の構造化フィードのサブセットをパースする。
// 行のアンフォールディング、VEVENTブロックの抽出、プロパティのパース、
// 日時値の解釈、エスケープ解除、および鮮度フィルタを含む。
package ics

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// staleThreshold は鮮度フィルタの閾値。
// 終了日時がパース時点よりこの期間以上過去のイベントは表示対象にしない。
const staleThreshold = 7 * 24 * time.Hour

// Event はパース済みのVEVENTを表す。正規化前の候補イベントである。
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Status      string
	Start       time.Time
	End         time.Time
	// AllDay はDTSTARTが日付のみ（時刻なし）だったことを示す。
	AllDay bool
}

// Parser はiCalendarサブセットのパーサー。
// Nowは鮮度フィルタの基準時刻。テストでの差し替え用で、既定はtime.Now。
type Parser struct {
	Now func() time.Time
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

// Parse はフィード本文をパースしてイベント候補のリストを返す。
// DTSTARTを欠くイベント、日時をパースできないイベント、
// 終了が7日以上過去のイベントは個別にスキップされ、残りの処理は継続する。
func (p *Parser) Parse(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty feed body")
	}

	lines := unfoldLines(string(body))
	blocks := extractEventBlocks(lines)

	now := p.Now()
	events := make([]Event, 0, len(blocks))

	for _, block := range blocks {
		ev, ok := parseEventBlock(block)
		if !ok {
			continue
		}
		// 鮮度フィルタ: 終了が7日以上過去のイベントは表示しない
		if now.Sub(ev.End) > staleThreshold {
			continue
		}
		events = append(events, ev)
	}

	slog.Debug("フィードのパースが完了しました",
		slog.Int("block_count", len(blocks)),
		slog.Int("event_count", len(events)),
	)

	return events, nil
}

// unfoldLines はフィード本文を論理行に分割する。
// 空白またはタブで始まる物理行は、先頭の空白を除いて直前の論理行に連結される。
// プロパティが複数の物理行に折り返されるため、プロパティのパースより前に行う。
func unfoldLines(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	physical := strings.Split(body, "\n")

	var logical []string
	for _, line := range physical {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(logical) > 0 {
			logical[len(logical)-1] += line[1:]
			continue
		}
		logical = append(logical, line)
	}
	return logical
}

// extractEventBlocks はBEGIN:VEVENT/END:VEVENTで囲まれたブロックを抽出する。
func extractEventBlocks(lines []string) [][]string {
	var blocks [][]string
	var current []string
	inEvent := false

	for _, line := range lines {
		switch {
		case strings.EqualFold(line, "BEGIN:VEVENT"):
			inEvent = true
			current = nil
		case strings.EqualFold(line, "END:VEVENT"):
			if inEvent {
				blocks = append(blocks, current)
			}
			inEvent = false
		default:
			if inEvent {
				current = append(current, line)
			}
		}
	}
	return blocks
}

// parseEventBlock は1つのVEVENTブロックをパースする。
// DTSTARTが存在しない、またはパースできない場合はfalseを返す。
func parseEventBlock(lines []string) (Event, bool) {
	props := parseProperties(lines)

	startRaw, ok := props["DTSTART"]
	if !ok {
		return Event{}, false
	}
	start, allDay, err := parseDateTime(startRaw)
	if err != nil {
		return Event{}, false
	}

	// DTEND欠落時は開始+1時間を既定とする
	end := start.Add(time.Hour)
	if endRaw, ok := props["DTEND"]; ok {
		if t, _, err := parseDateTime(endRaw); err == nil {
			end = t
		}
	}

	return Event{
		UID:         props["UID"],
		Summary:     unescapeText(props["SUMMARY"]),
		Description: unescapeText(props["DESCRIPTION"]),
		Location:    unescapeText(props["LOCATION"]),
		Status:      props["STATUS"],
		Start:       start,
		End:         end,
		AllDay:      allDay,
	}, true
}

// parseProperties は `KEY[;params]:value` 形式の論理行をプロパティマップに変換する。
// `;` 以降のパラメータはこの層では破棄し、名前部分のみをキーとする。
func parseProperties(lines []string) map[string]string {
	props := make(map[string]string, len(lines))
	for _, line := range lines {
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		name := line[:colon]
		value := line[colon+1:]
		if semi := strings.Index(name, ";"); semi >= 0 {
			name = name[:semi]
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		props[name] = value
	}
	return props
}

// parseDateTime はiCalendarの日時値をパースする。
// サポートする形式:
//   - 20060102          日付のみ（ローカル深夜0時、終日扱い）
//   - 20060102T150405   ローカルタイムスタンプ
//   - 20060102T150405Z  UTCタイムスタンプ
//
// 戻り値の2番目は終日（日付のみ）だったかを示す。
func parseDateTime(v string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty date-time value")
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	if strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102T150405", v, time.Local)
		return t, false, err
	}

	t, err := time.ParseInLocation("20060102", v, time.Local)
	return t, true, err
}

// unescapeText は自由テキストフィールドのバックスラッシュエスケープを解除する。
// \n および \N は改行、\, はカンマ、\; はセミコロン、\\ はバックスラッシュになる。
func unescapeText(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',':
			b.WriteByte(',')
		case ';':
			b.WriteByte(';')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
