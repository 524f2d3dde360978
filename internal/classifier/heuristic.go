// Package classifier はメール候補の会議分類を提供する。
// ヒューリスティックスコアラー、オラクル連携、および本文からの
// 日時抽出（幻覚棄却付き）を含む。
package classifier

import (
	"regexp"
	"strings"

	"github.com/hitoshi/calscan/internal/model"
)

// スコアの閾値。3以上で会議候補、5以上で高確信度となる。
const (
	meetingScoreBar  = 3
	highScoreBar     = 5
	automatedPenalty = 3
)

// schedulingVocabulary は明示的なスケジューリング語彙。
// 検査ベースで調整された初期設定であり、確定的な規則集合ではない。
var schedulingVocabulary = []string{
	"meeting", "meet", "call", "appointment", "invite", "invitation",
	"schedule", "scheduled", "rescheduled", "sync", "interview",
	"demo", "catch up", "1:1", "one-on-one", "standup", "review",
}

// platformNames はビデオ会議プラットフォーム名。
var platformNames = []string{
	"zoom", "google meet", "meet.google.com", "teams", "webex",
	"hangout", "whereby", "jitsi",
}

// automatedSenderPatterns は自動送信元アドレスのパターン。
// これらに一致する送信元はニュースレター等とみなし減点する。
var automatedSenderPatterns = []string{
	"no-reply", "noreply", "donotreply", "do-not-reply",
	"digest", "newsletter", "notification", "notifications",
	"updates", "mailer", "bounce",
}

// withNamePattern は「with <大文字始まりの名前>」のパターン。
var withNamePattern = regexp.MustCompile(`\bwith\s+[A-Z][a-z]+`)

// Score はメール候補のヒューリスティックスコアを計算する。
// 強い語彙シグナルへの加点と自動送信元への減点の合計を返す。
func Score(cand model.EmailCandidate) int {
	subject := strings.ToLower(cand.Subject)
	snippet := strings.ToLower(cand.Snippet)
	combined := subject + " " + snippet

	score := 0

	if containsAny(combined, schedulingVocabulary) {
		score += 2
	}
	if containsAny(combined, platformNames) {
		score += 2
	}
	if hasTimePattern(cand.Subject) {
		score += 2
	}
	if hasDatePattern(cand.Subject) {
		score += 2
	}
	if withNamePattern.MatchString(cand.Subject) {
		score++
	}
	if isAutomatedSender(cand.From) {
		score -= automatedPenalty
	}

	return score
}

// confidenceForScore はスコアに応じたヒューリスティック確信度を返す。
func confidenceForScore(score int) model.Confidence {
	if score >= highScoreBar {
		return model.ConfidenceHigh
	}
	return model.ConfidenceMedium
}

// isAutomatedSender は送信元アドレスが自動送信パターンに一致するかを返す。
func isAutomatedSender(from string) bool {
	lower := strings.ToLower(from)
	for _, pattern := range automatedSenderPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// hasTimePattern は件名に時刻パターンが含まれるかを返す。
func hasTimePattern(subject string) bool {
	return clockTimeRe.MatchString(subject) || hourOnlyRe.MatchString(subject)
}

// hasDatePattern は件名に日付パターンが含まれるかを返す。
func hasDatePattern(subject string) bool {
	return monthDayRe.MatchString(subject) || dayMonthRe.MatchString(subject)
}
