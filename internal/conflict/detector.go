// Package conflict はエントリ集合に対する時間帯競合の検出を提供する。
package conflict

import (
	"log/slog"

	"github.com/hitoshi/calscan/internal/model"
)

// Detect は全エントリの順序対(A, B)について半開区間の重複判定
// `A.start < B.end && A.end > B.start` を行い、重複したペアの
// ConflictIDsを相互に更新する（対称閉包）。
//
// 実行前に全エントリのConflictIDsをクリアするため冪等であり、
// 同じ集合に対して2回実行しても結果は変わらない。スキャン完了ごとに
// 全件に対して1回実行される設計で、想定規模（数百件）ではO(n²)で足りる。
//
// 戻り値は競合ペアの数。
func Detect(entries []*model.CalendarEntry) int {
	// 再計算前にクリアしないと繰り返し実行で競合リストが際限なく伸びる
	for _, e := range entries {
		e.ConflictIDs = nil
	}

	pairs := 0
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if !a.Overlaps(b) {
				continue
			}
			a.ConflictIDs = append(a.ConflictIDs, b.ID)
			b.ConflictIDs = append(b.ConflictIDs, a.ID)
			pairs++
		}
	}

	slog.Info("競合解析が完了しました",
		slog.Int("entry_count", len(entries)),
		slog.Int("conflict_pairs", pairs),
	)

	return pairs
}
