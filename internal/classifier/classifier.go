package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// Classifier はヒューリスティックとオラクルの二段構成でメール候補を
// 会議候補に分類する。オラクルがnilの場合はヒューリスティックのみで動作する。
type Classifier struct {
	oracle Oracle
	logger *slog.Logger
}

// NewClassifier はClassifierの新しいインスタンスを生成する。
// oracleはnil許容で、nilの場合は曖昧な候補もヒューリスティックのみで判定する。
func NewClassifier(oracle Oracle, logger *slog.Logger) *Classifier {
	return &Classifier{
		oracle: oracle,
		logger: logger,
	}
}

// Classify はメール候補を分類し、会議であれば分類結果を返す。
// 会議でない、または日時の根拠が本文に無い場合は(nil, nil)を返す。
//
// 判定の流れ:
//  1. ヒューリスティックスコアが閾値未満なら、オラクルには問い合わせず棄却する。
//  2. 高確信度帯のスコアはオラクルを介さず受理する。
//  3. 中間帯のスコアはオラクルに確認し、否定されたら棄却する。
//     オラクルが利用不能な場合はヒューリスティック判定のまま受理する。
//  4. 日付は本文の文字列一致からのみ取り込む。日付が抽出できない候補、
//     および捏造が疑われる時刻（分が5の倍数でない）を含む候補は全体を棄却する。
func (c *Classifier) Classify(ctx context.Context, cand model.EmailCandidate) (*model.MeetingClassification, error) {
	score := Score(cand)

	// 閾値未満はオラクルの意見に関わらず会議ではない
	if score < meetingScoreBar {
		return nil, nil
	}

	confidence := confidenceForScore(score)

	if score < highScoreBar {
		verdict, err := c.confirmMeeting(ctx, cand)
		if err != nil {
			// オラクル不在・障害時はヒューリスティックのみの中確信度で続行
			c.logger.Warn("オラクル確認に失敗したためヒューリスティック判定を採用します",
				slog.String("message_id", cand.MessageID),
				slog.String("error", err.Error()),
			)
		} else if !verdict {
			c.logger.Debug("オラクルが会議候補を否定しました",
				slog.String("message_id", cand.MessageID),
				slog.Int("score", score),
			)
			return nil, nil
		}
		confidence = model.ConfidenceMedium
	}

	combined := cand.Subject + " " + cand.Snippet

	dates := extractDates(combined, cand.ReceivedAt)
	if len(dates) == 0 {
		// 本文に日付の根拠が無い候補は保存しない
		return nil, nil
	}

	start, err := c.resolveStartDate(ctx, cand, dates)
	if err != nil {
		return nil, err
	}

	ts, err := extractTime(combined)
	if err != nil {
		// 捏造が疑われる時刻を含む候補は時刻だけでなく全体を棄却する
		c.logger.Debug("捏造疑いの時刻を検出したため候補を棄却します",
			slog.String("message_id", cand.MessageID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	result := &model.MeetingClassification{
		IsMeeting:       true,
		Title:           strings.TrimSpace(cand.Subject),
		Date:            start.date,
		Confidence:      confidence,
		DateSpan:        start.span,
		DurationMinutes: 60,
	}
	if ts != nil {
		result.HasTime = true
		result.Hour = ts.hour
		result.Minute = ts.minute
		result.TimeSpan = ts.span
	} else if end := latestDateAfter(dates, start.date); end != nil {
		// 時刻の無い候補で開始日より後の日付も抽出されている場合は
		// 複数日にまたがる予定とみなし、最も遅い日付を終了日にする
		result.EndDate = end
	}

	return result, nil
}

// latestDateAfter は抽出済みスパンのうちstartより後で最も遅い日付を返す。
// 該当が無ければnilを返す。日付は常に本文から抽出されたものに限られる。
func latestDateAfter(dates []dateSpan, start time.Time) *time.Time {
	var latest *time.Time
	for i := range dates {
		d := dates[i].date
		if !d.After(start) {
			continue
		}
		if latest == nil || d.After(*latest) {
			latest = &d
		}
	}
	return latest
}

// confirmMeeting は曖昧スコア帯の候補についてオラクルに可否を問う。
// 応答の先頭がYESの場合のみtrueを返す。
func (c *Classifier) confirmMeeting(ctx context.Context, cand model.EmailCandidate) (bool, error) {
	if c.oracle == nil {
		return false, fmt.Errorf("オラクルが構成されていません")
	}

	prompt := buildMeetingPrompt(cand)
	answer, err := c.oracle.Ask(ctx, prompt)
	if err != nil {
		return false, err
	}

	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES"), nil
}

// resolveStartDate は抽出された日付スパンから開始日を決定する。
// スパンが1つならそれを採用する。複数ある場合はオラクルにどのスパンが
// 開始日かを確認し、応答が抽出済みスパンに一致する場合のみ採用を変える。
// オラクル不在時や応答が一致しない場合は最初のスパンを採用する。
func (c *Classifier) resolveStartDate(ctx context.Context, cand model.EmailCandidate, dates []dateSpan) (dateSpan, error) {
	if len(dates) == 1 || c.oracle == nil {
		return dates[0], nil
	}

	prompt := buildStartDatePrompt(cand, dates)
	answer, err := c.oracle.Ask(ctx, prompt)
	if err != nil {
		c.logger.Warn("開始日の確認に失敗したため最初の日付を採用します",
			slog.String("message_id", cand.MessageID),
			slog.String("error", err.Error()),
		)
		return dates[0], nil
	}

	// 応答は抽出済みスパンとの一致でのみ解釈する。一致しない自由記述は無視する
	normalized := strings.ToLower(strings.TrimSpace(answer))
	for _, d := range dates {
		if strings.Contains(normalized, strings.ToLower(d.span)) {
			return d, nil
		}
	}
	return dates[0], nil
}

// meetingPromptExamples は判定基準を固定するfew-shot例。
// 実行ごとに変化しない定型の前置きとして毎回プロンプトに含める。
const meetingPromptExamples = `Example 1:
Subject: Lunch on Friday?
From: carol@example.com
Body: Want to grab lunch this Friday at noon? The usual place.
Answer: YES

Example 2:
Subject: Your March newsletter is here
From: news@shopping.example.com
Body: Spring deals, product updates and more inside.
Answer: NO

Example 3:
Subject: Reminder: dentist appointment
From: frontdesk@dental.example.com
Body: This is a reminder of your appointment on Tuesday at 9am.
Answer: YES

`

// buildMeetingPrompt は会議可否確認のプロンプトを組み立てる。
// 判定例は固定で、候補メールの内容だけが可変部になる。
func buildMeetingPrompt(cand model.EmailCandidate) string {
	var b strings.Builder
	b.WriteString("You are a strict email classifier. Answer with exactly YES or NO.\n")
	b.WriteString("Question: does this email describe a specific meeting or appointment the recipient is expected to attend?\n")
	b.WriteString("Newsletters, promotions and automated digests are NO.\n\n")
	b.WriteString(meetingPromptExamples)
	b.WriteString("Subject: " + cand.Subject + "\n")
	b.WriteString("From: " + cand.From + "\n")
	b.WriteString("Body: " + cand.Snippet + "\n\n")
	b.WriteString("Answer:")
	return b.String()
}

// buildStartDatePrompt は複数日付スパンからの開始日確認プロンプトを組み立てる。
func buildStartDatePrompt(cand model.EmailCandidate, dates []dateSpan) string {
	var b strings.Builder
	b.WriteString("This email mentions several dates. Which one is the start date of the meeting?\n")
	b.WriteString("Answer by repeating exactly one of the candidate phrases, nothing else.\n\n")
	b.WriteString("Subject: " + cand.Subject + "\n")
	b.WriteString("Body: " + cand.Snippet + "\n\n")
	b.WriteString("Candidates:\n")
	for _, d := range dates {
		b.WriteString("- " + d.span + " (" + d.date.Format(time.DateOnly) + ")\n")
	}
	b.WriteString("\nAnswer:")
	return b.String()
}
