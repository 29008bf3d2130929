package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pdfmerge/internal/tokens"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS api_tokens (
	token TEXT PRIMARY KEY,
	rate_limit INTEGER NOT NULL DEFAULT 60,
	max_documents INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	comment TEXT
);`

const indexDDL = `CREATE INDEX IF NOT EXISTS idx_api_tokens_created_at ON api_tokens (created_at);`

// TokenRepository reads API tokens from the api_tokens table.
type TokenRepository struct {
	DB  *DB
	DSN string
}

var _ tokens.Repository = (*TokenRepository)(nil)

func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// VerifySchema creates the token table and index when missing.
func VerifySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create api_tokens: %w", err)
	}
	if _, err := db.ExecContext(ctx, indexDDL); err != nil {
		return fmt.Errorf("create api_tokens index: %w", err)
	}
	return nil
}

// LoadTokens returns every token with its limits.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, err
	}
	if err := VerifySchema(db); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit, max_documents FROM api_tokens;`)
	if err != nil {
		return nil, fmt.Errorf("query api_tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var (
			token          string
			limit, maxDocs int
		)
		if err := rows.Scan(&token, &limit, &maxDocs); err != nil {
			return nil, fmt.Errorf("scan api_tokens: %w", err)
		}
		out[token] = tokens.Entry{RateLimit: limit, MaxDocuments: maxDocs}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
