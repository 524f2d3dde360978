// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイプ由来テキストの無害化インターフェースを定義する。
// DOMから取り出した件名・スニペット・イベントタイトルは信用できないため、
// 分類・永続化の前に必ずプレーンテキストへ落とす。
type TextSanitizerService interface {
	// SanitizeText はHTMLタグを全て除去し、実体参照を復元した
	// プレーンテキストを返す。連続する空白は1つに畳まれる。
	// 同一入力に対して常に同一出力を返す（決定的）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// 許可リスト方式のカスタムポリシーではなくStrictPolicyを使用する。
// スクレイプ結果はHTMLとして表示されることがなく、常にテキストとして
// 正規表現や分類器に渡されるため、タグを残す理由がない。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを全て除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは残ったテキストを実体参照でエスケープするため復元する
	decoded := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(decoded), " ")
}
