package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/pkg/database"
)

const accessTokenColumns = `id, user_id, name, secret_hash, last_used_at, created_at`

// accessTokenRepository implements AccessTokenRepository interface
type accessTokenRepository struct {
	db *database.Postgres
}

// NewAccessTokenRepository creates a new access token repository
func NewAccessTokenRepository(db *database.Postgres) AccessTokenRepository {
	return &accessTokenRepository{db: db}
}

// Create stores a new access token
func (r *accessTokenRepository) Create(ctx context.Context, token *domain.AccessToken) error {
	query := `
		INSERT INTO access_tokens (id, user_id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Name,
		token.SecretHash,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	return nil
}

// GetByID retrieves an access token by ID
func (r *accessTokenRepository) GetByID(ctx context.Context, id string) (*domain.AccessToken, error) {
	query := `SELECT ` + accessTokenColumns + ` FROM access_tokens WHERE id = $1`

	token, err := scanAccessToken(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access token with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return token, nil
}

// ListByUser retrieves all access tokens for a user, newest first
func (r *accessTokenRepository) ListByUser(ctx context.Context, userID string) ([]*domain.AccessToken, error) {
	query := `
		SELECT ` + accessTokenColumns + `
		FROM access_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*domain.AccessToken, 0)
	for rows.Next() {
		token, err := scanAccessToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access tokens: %w", err)
	}

	return tokens, nil
}

// Delete deletes a token owned by userID. Tokens of other users are reported
// as not deleted, same as missing ones.
func (r *accessTokenRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	query := `DELETE FROM access_tokens WHERE id = $1 AND user_id = $2`

	result, err := r.db.DB.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete access token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Touch records the last time a token authenticated a request
func (r *accessTokenRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE access_tokens SET last_used_at = $2 WHERE id = $1`

	if _, err := r.db.DB.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch access token: %w", err)
	}

	return nil
}

func scanAccessToken(row rowScanner) (*domain.AccessToken, error) {
	token := &domain.AccessToken{}
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.SecretHash,
		&lastUsedAt,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	token.LastUsedAt = timePtr(lastUsedAt)
	return token, nil
}
