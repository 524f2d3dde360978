package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calscan/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// List は全アカウントを作成日時の昇順で返す。
func (r *PostgresAccountRepo) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, display_name, address, selector_index, feed_url, provider, created_at, updated_at
		 FROM accounts ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("アカウント行の読み取りに失敗しました: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アカウント一覧の走査に失敗しました: %w", err)
	}

	return accounts, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, address, selector_index, feed_url, provider, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		id,
	)

	account, err := scanAccount(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return account, nil
}

// FindByAddress はアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByAddress(ctx context.Context, address string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, address, selector_index, feed_url, provider, created_at, updated_at
		 FROM accounts WHERE address = $1`,
		address,
	)

	account, err := scanAccount(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アドレスによるアカウントの検索に失敗しました: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, display_name, address, selector_index, feed_url, provider, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.DisplayName, account.Address, account.SelectorIndex,
		nullString(account.FeedURL), string(account.Provider),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのアカウントを削除する。関連エントリはCASCADE削除される。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}
	return nil
}

// scanAccount は1行分のアカウントを読み取る。
func scanAccount(scan func(dest ...any) error) (*model.Account, error) {
	account := &model.Account{}
	var feedURL sql.NullString
	var provider string

	if err := scan(
		&account.ID, &account.DisplayName, &account.Address, &account.SelectorIndex,
		&feedURL, &provider, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	account.FeedURL = nullStringValue(feedURL)
	account.Provider = model.Provider(provider)
	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
