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

const magicLoginTokenColumns = `id, user_id, token_hash, expires_at, used_at, remember, redirect_to, ip, user_agent, used_ip, used_ua, created_at`

// magicLoginTokenRepository implements MagicLoginTokenRepository interface
type magicLoginTokenRepository struct {
	db *database.Postgres
}

// NewMagicLoginTokenRepository creates a new magic login token repository
func NewMagicLoginTokenRepository(db *database.Postgres) MagicLoginTokenRepository {
	return &magicLoginTokenRepository{db: db}
}

// Create stores a new, unused token
func (r *magicLoginTokenRepository) Create(ctx context.Context, token *domain.MagicLoginToken) error {
	query := `
		INSERT INTO magic_login_tokens (id, user_id, token_hash, expires_at, remember, redirect_to, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
		token.TokenHash,
		token.ExpiresAt,
		token.Remember,
		token.RedirectTo,
		token.IP,
		token.UserAgent,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create magic login token: %w", err)
	}

	return nil
}

// Consume locks the row with SELECT ... FOR UPDATE so concurrent verifications
// of the same id queue behind each other, then flips used_at only if it is
// still NULL.
func (r *magicLoginTokenRepository) Consume(ctx context.Context, id string, usage domain.MagicLinkUsage, check func(*domain.MagicLoginToken) error) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + magicLoginTokenColumns + ` FROM magic_login_tokens WHERE id = $1 FOR UPDATE`

		token, err := scanMagicLoginToken(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("magic login token %s not found: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to lock magic login token: %w", err)
		}

		if err := check(token); err != nil {
			return err
		}

		update := `
			UPDATE magic_login_tokens
			SET used_at = $2, used_ip = $3, used_ua = $4
			WHERE id = $1 AND used_at IS NULL
		`

		result, err := tx.ExecContext(ctx, update, id, usage.UsedAt, usage.IP, usage.UserAgent)
		if err != nil {
			return fmt.Errorf("failed to mark magic login token used: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return fmt.Errorf("magic login token %s: %w", id, ErrTokenConsumed)
		}

		return nil
	})
}

// DeleteStaleForUser removes a user's unused tokens that expired before the cutoff
func (r *magicLoginTokenRepository) DeleteStaleForUser(ctx context.Context, userID string, expiredBefore time.Time) (int64, error) {
	query := `
		DELETE FROM magic_login_tokens
		WHERE user_id = $1 AND used_at IS NULL AND expires_at < $2
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale magic login tokens: %w", err)
	}

	return result.RowsAffected()
}

// DeleteExpired removes every token, used or not, that expired before the cutoff
func (r *magicLoginTokenRepository) DeleteExpired(ctx context.Context, expiredBefore time.Time) (int64, error) {
	query := `DELETE FROM magic_login_tokens WHERE expires_at < $1`

	result, err := r.db.DB.ExecContext(ctx, query, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic login tokens: %w", err)
	}

	return result.RowsAffected()
}

func scanMagicLoginToken(row rowScanner) (*domain.MagicLoginToken, error) {
	token := &domain.MagicLoginToken{}
	var usedAt sql.NullTime
	var usedIP, usedUA sql.NullString

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&usedAt,
		&token.Remember,
		&token.RedirectTo,
		&token.IP,
		&token.UserAgent,
		&usedIP,
		&usedUA,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	token.UsedAt = timePtr(usedAt)
	token.UsedIP = usedIP.String
	token.UsedUA = usedUA.String
	return token, nil
}
