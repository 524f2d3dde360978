package security

import (
	"testing"
)

func TestSanitizeText_StripsAllTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "Sync with Bob tomorrow at 3pm",
			want:  "Sync with Bob tomorrow at 3pm",
		},
		{
			name:  "インラインタグ除去",
			input: "Meeting <b>tomorrow</b> at <i>3pm</i>",
			want:  "Meeting tomorrow at 3pm",
		},
		{
			name:  "scriptタグと中身を除去",
			input: `Hello<script>alert("x")</script> world`,
			want:  "Hello world",
		},
		{
			name:  "実体参照を復元",
			input: "Q&amp;A session &lt;today&gt;",
			want:  "Q&A session <today>",
		},
		{
			name:  "連続空白と改行を畳む",
			input: "Team   standup\n\n  daily",
			want:  "Team standup daily",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeText(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対する出力が常に一致すること。
func TestSanitizeText_Deterministic(t *testing.T) {
	s := NewTextSanitizer()

	input := "Meeting <b>tomorrow</b> &amp; planning"
	first := s.SanitizeText(input)
	second := s.SanitizeText(input)

	if first != second {
		t.Errorf("同一入力で出力が変化: %q vs %q", first, second)
	}
}
