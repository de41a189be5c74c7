package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/pkg/database"
)

const webAuthnCredentialColumns = `id, user_id, credential_id, name, public_key, sign_count, transports, last_used_at, created_at`

// webAuthnCredentialRepository implements WebAuthnCredentialRepository interface
type webAuthnCredentialRepository struct {
	db *database.Postgres
}

// NewWebAuthnCredentialRepository creates a new WebAuthn credential repository
func NewWebAuthnCredentialRepository(db *database.Postgres) WebAuthnCredentialRepository {
	return &webAuthnCredentialRepository{db: db}
}

// Upsert registers a credential, or refreshes it when the same user registers
// the same authenticator again. A credential id owned by someone else is left
// untouched and reported as ErrCredentialOwnedByOtherUser.
func (r *webAuthnCredentialRepository) Upsert(ctx context.Context, credential *domain.WebAuthnCredential) error {
	query := `
		INSERT INTO webauthn_credentials (id, user_id, credential_id, name, public_key, sign_count, transports, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (credential_id) DO UPDATE
		SET name = EXCLUDED.name,
			public_key = EXCLUDED.public_key,
			sign_count = EXCLUDED.sign_count,
			transports = EXCLUDED.transports,
			last_used_at = EXCLUDED.last_used_at
		WHERE webauthn_credentials.user_id = EXCLUDED.user_id
		RETURNING id, created_at
	`

	if credential.ID == "" {
		credential.ID = uuid.New().String()
	}
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now()
	}

	err := r.db.DB.QueryRowContext(ctx, query,
		credential.ID,
		credential.UserID,
		credential.CredentialID,
		credential.Name,
		credential.PublicKey,
		int64(credential.SignCount),
		pq.Array(transportsOrEmpty(credential.Transports)),
		credential.LastUsedAt,
		credential.CreatedAt,
	).Scan(&credential.ID, &credential.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("credential %s: %w", credential.CredentialID, ErrCredentialOwnedByOtherUser)
		}
		return fmt.Errorf("failed to upsert webauthn credential: %w", err)
	}

	return nil
}

// GetByCredentialID retrieves a credential by its authenticator-assigned id
func (r *webAuthnCredentialRepository) GetByCredentialID(ctx context.Context, credentialID string) (*domain.WebAuthnCredential, error) {
	query := `SELECT ` + webAuthnCredentialColumns + ` FROM webauthn_credentials WHERE credential_id = $1`

	credential, err := scanWebAuthnCredential(r.db.DB.QueryRowContext(ctx, query, credentialID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("webauthn credential %s not found: %w", credentialID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get webauthn credential: %w", err)
	}

	return credential, nil
}

// ListByUser retrieves all credentials registered by a user
func (r *webAuthnCredentialRepository) ListByUser(ctx context.Context, userID string) ([]*domain.WebAuthnCredential, error) {
	query := `
		SELECT ` + webAuthnCredentialColumns + `
		FROM webauthn_credentials
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webauthn credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*domain.WebAuthnCredential
	for rows.Next() {
		credential, err := scanWebAuthnCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webauthn credential: %w", err)
		}
		credentials = append(credentials, credential)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webauthn credentials: %w", err)
	}

	return credentials, nil
}

// UpdateSignCount is a check-and-set: the row changes only while the stored
// counter is not greater than the new one.
func (r *webAuthnCredentialRepository) UpdateSignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	query := `
		UPDATE webauthn_credentials
		SET sign_count = $2, last_used_at = $3
		WHERE credential_id = $1 AND sign_count <= $2
	`

	result, err := r.db.DB.ExecContext(ctx, query, credentialID, int64(signCount), usedAt)
	if err != nil {
		return fmt.Errorf("failed to update sign count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("credential %s: %w", credentialID, ErrSignCountRegression)
	}

	return nil
}

func scanWebAuthnCredential(row rowScanner) (*domain.WebAuthnCredential, error) {
	credential := &domain.WebAuthnCredential{}
	var signCount int64
	var transports pq.StringArray
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&credential.ID,
		&credential.UserID,
		&credential.CredentialID,
		&credential.Name,
		&credential.PublicKey,
		&signCount,
		&transports,
		&lastUsedAt,
		&credential.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	credential.SignCount = uint32(signCount)
	credential.Transports = []string(transports)
	credential.LastUsedAt = timePtr(lastUsedAt)
	return credential, nil
}

func transportsOrEmpty(transports []string) []string {
	if transports == nil {
		return []string{}
	}
	return transports
}
