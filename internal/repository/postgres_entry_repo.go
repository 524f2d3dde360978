package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/calscan/internal/model"
)

// entryColumns はエントリ行のSELECT列。Scanの順序と対応する。
const entryColumns = `id, account_id, title, start_at, end_at, all_day, status,
	        source_kind, feed_name, external_event_id, location, rsvp_state,
	        subject, snippet, thread_id, email_at, classifier_evidence,
	        conflict_ids, created_at, updated_at`

// PostgresEntryRepo はPostgreSQLを使用したエントリリポジトリ。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// Upsert はエントリを保存する。IDが決定的なため同じ予定の再取り込みは
// 新規行ではなく上書きになる。created_atは初回挿入時の値を維持する。
func (r *PostgresEntryRepo) Upsert(ctx context.Context, entry *model.CalendarEntry) error {
	var (
		feedName, externalEventID, location, rsvpState   sql.NullString
		subject, snippet, threadID, classifierEvidence   sql.NullString
		emailAt                                          sql.NullTime
	)
	if cal := entry.Source.Calendar; cal != nil {
		feedName = nullString(cal.FeedName)
		externalEventID = nullString(cal.ExternalEventID)
		location = nullString(cal.Location)
		rsvpState = nullString(cal.RSVPState)
	}
	if email := entry.Source.Email; email != nil {
		subject = nullString(email.Subject)
		snippet = nullString(email.Snippet)
		threadID = nullString(email.ThreadID)
		classifierEvidence = nullString(email.ClassifierEvidence)
		emailAt = sql.NullTime{Time: email.EmailAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, account_id, title, start_at, end_at, all_day, status,
		                      source_kind, feed_name, external_event_id, location, rsvp_state,
		                      subject, snippet, thread_id, email_at, classifier_evidence,
		                      conflict_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (id) DO UPDATE SET
		    title = EXCLUDED.title, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
		    all_day = EXCLUDED.all_day, status = EXCLUDED.status,
		    feed_name = EXCLUDED.feed_name, external_event_id = EXCLUDED.external_event_id,
		    location = EXCLUDED.location, rsvp_state = EXCLUDED.rsvp_state,
		    subject = EXCLUDED.subject, snippet = EXCLUDED.snippet,
		    thread_id = EXCLUDED.thread_id, email_at = EXCLUDED.email_at,
		    classifier_evidence = EXCLUDED.classifier_evidence,
		    conflict_ids = EXCLUDED.conflict_ids, updated_at = EXCLUDED.updated_at`,
		entry.ID, entry.AccountID, entry.Title, entry.StartAt, entry.EndAt,
		entry.AllDay, string(entry.Status), string(entry.Source.Kind),
		feedName, externalEventID, location, rsvpState,
		subject, snippet, threadID, emailAt, classifierEvidence,
		conflictIDsArray(entry.ConflictIDs), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("エントリの保存に失敗しました: %w", err)
	}
	return nil
}

// ListAll は全エントリを開始時刻の昇順で返す。
func (r *PostgresEntryRepo) ListAll(ctx context.Context) ([]*model.CalendarEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY start_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("エントリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByRange は区間[start, end)に重なるエントリを開始時刻の昇順で返す。
// 重複判定は半開区間で行う。
func (r *PostgresEntryRepo) ListByRange(ctx context.Context, start, end time.Time) ([]*model.CalendarEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
		 WHERE start_at < $2 AND end_at > $1
		 ORDER BY start_at ASC`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("区間指定のエントリ取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteByAccountAndKind は指定アカウント・ソース種別のエントリを削除する。
func (r *PostgresEntryRepo) DeleteByAccountAndKind(ctx context.Context, accountID string, kind model.SourceKind) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE account_id = $1 AND source_kind = $2`,
		accountID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("アカウント別エントリの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteAll は全エントリを削除する。
func (r *PostgresEntryRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return fmt.Errorf("全エントリの削除に失敗しました: %w", err)
	}
	return nil
}

// UpdateConflictIDs はエントリの競合リストを置き換える。
func (r *PostgresEntryRepo) UpdateConflictIDs(ctx context.Context, entryID string, conflictIDs []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET conflict_ids = $2, updated_at = now() WHERE id = $1`,
		entryID, conflictIDsArray(conflictIDs),
	)
	if err != nil {
		return fmt.Errorf("競合リストの更新に失敗しました: %w", err)
	}
	return nil
}

// scanEntries は行集合からエントリ一覧を組み立てる。
func scanEntries(rows *sql.Rows) ([]*model.CalendarEntry, error) {
	var entries []*model.CalendarEntry
	for rows.Next() {
		entry := &model.CalendarEntry{}
		var (
			status, sourceKind                               string
			feedName, externalEventID, location, rsvpState   sql.NullString
			subject, snippet, threadID, classifierEvidence   sql.NullString
			emailAt                                          sql.NullTime
			conflictIDs                                      pq.StringArray
		)

		if err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.Title, &entry.StartAt, &entry.EndAt,
			&entry.AllDay, &status,
			&sourceKind, &feedName, &externalEventID, &location, &rsvpState,
			&subject, &snippet, &threadID, &emailAt, &classifierEvidence,
			&conflictIDs, &entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("エントリ行の読み取りに失敗しました: %w", err)
		}

		entry.Status = model.EntryStatus(status)
		entry.ConflictIDs = []string(conflictIDs)
		entry.Source.Kind = model.SourceKind(sourceKind)
		switch entry.Source.Kind {
		case model.SourceKindCalendar:
			entry.Source.Calendar = &model.CalendarSource{
				FeedName:        nullStringValue(feedName),
				ExternalEventID: nullStringValue(externalEventID),
				Location:        nullStringValue(location),
				RSVPState:       nullStringValue(rsvpState),
			}
		case model.SourceKindEmail:
			email := &model.EmailSource{
				Subject:            nullStringValue(subject),
				Snippet:            nullStringValue(snippet),
				ThreadID:           nullStringValue(threadID),
				ClassifierEvidence: nullStringValue(classifierEvidence),
			}
			if emailAt.Valid {
				email.EmailAt = emailAt.Time
			}
			entry.Source.Email = email
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エントリ一覧の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// conflictIDsArray は競合リストをTEXT[]列の値に変換する。
// nilスライスをpq.Arrayにそのまま渡すとSQL NULLになり、NOT NULL制約に
// 違反するため、空配列に寄せてから渡す。
func conflictIDsArray(ids []string) interface {
	driver.Valuer
	sql.Scanner
} {
	if ids == nil {
		ids = []string{}
	}
	return pq.Array(ids)
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はNULLを空文字列に変換する。
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
