package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drewfead/calbot/internal/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/oauth2"
)

type tokenRecord struct {
	bun.BaseModel `bun:"table:oauth_tokens"`

	Account   string    `bun:"account,pk"`
	Token     string    `bun:"token,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLiteTokenStore keeps one token per account name in a SQLite database,
// so several calendar accounts can share a single cache file.
type SQLiteTokenStore struct {
	db      *bun.DB
	account string
	path    string
}

// OpenSQLiteTokenStore opens (and if needed creates) the token database.
func OpenSQLiteTokenStore(ctx context.Context, path, account string) (*SQLiteTokenStore, error) {
	if account == "" {
		return nil, fmt.Errorf("OpenSQLiteTokenStore: account is blank")
	}
	if err := config.EnsureDir(path); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("OpenSQLiteTokenStore: can't open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().
		Model((*tokenRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteTokenStore: can't create schema: %w", err)
	}

	return &SQLiteTokenStore{db: db, account: account, path: path}, nil
}

func (s *SQLiteTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	rec := new(tokenRecord)
	if err := s.db.NewSelect().
		Model(rec).
		Where("account = ?", s.account).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("(*SQLiteTokenStore).Load: %w", err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(rec.Token), tok); err != nil {
		return nil, fmt.Errorf("(*SQLiteTokenStore).Load: unable to decode token: %w", err)
	}
	return tok, nil
}

func (s *SQLiteTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("(*SQLiteTokenStore).Save: unable to encode token: %w", err)
	}

	rec := &tokenRecord{
		Account:   s.account,
		Token:     string(data),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (account) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*SQLiteTokenStore).Save: can't upsert token: %w", err)
	}
	return nil
}

func (s *SQLiteTokenStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteTokenStore) String() string {
	return s.path + "#" + s.account
}
