// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/calscan/internal/model"
)

// AccountRepository は監視対象アカウントの永続化インターフェース。
type AccountRepository interface {
	// List は全アカウントを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByAddress はアドレス（自然キー）でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByAddress(ctx context.Context, address string) (*model.Account, error)

	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// DeleteByID は指定IDのアカウントを削除する。
	// 関連するエントリはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// EntryRepository は統一カレンダーエントリの永続化インターフェース。
// エントリIDは決定的に導出されるため、保存は常にUPSERTで行う。
type EntryRepository interface {
	// Upsert はエントリを保存する。同一IDの既存行は上書きされる。
	Upsert(ctx context.Context, entry *model.CalendarEntry) error

	// ListAll は全エントリを開始時刻の昇順で返す。
	ListAll(ctx context.Context) ([]*model.CalendarEntry, error)

	// ListByRange は区間[start, end)に重なるエントリを開始時刻の昇順で返す。
	ListByRange(ctx context.Context, start, end time.Time) ([]*model.CalendarEntry, error)

	// DeleteByAccountAndKind は指定アカウント・ソース種別のエントリを削除する。
	// スキャンの消してから再投入するサイクルの前半で使用する。
	DeleteByAccountAndKind(ctx context.Context, accountID string, kind model.SourceKind) error

	// DeleteAll は全エントリを削除する。
	DeleteAll(ctx context.Context) error

	// UpdateConflictIDs はエントリの競合リストを置き換える。
	UpdateConflictIDs(ctx context.Context, entryID string, conflictIDs []string) error
}
