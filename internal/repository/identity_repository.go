package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/pkg/database"
)

const identityColumns = `id, user_id, provider, provider_id, provider_email, data, created_at, updated_at`

// identityRepository implements IdentityRepository interface
type identityRepository struct {
	db *database.Postgres
}

// NewIdentityRepository creates a new OAuth identity repository
func NewIdentityRepository(db *database.Postgres) IdentityRepository {
	return &identityRepository{db: db}
}

// Upsert inserts the identity or, when (provider, provider_id) already exists,
// relinks it and refreshes its profile data and updated_at. The unique
// constraint makes concurrent callbacks for the same identity converge on one row.
func (r *identityRepository) Upsert(ctx context.Context, identity *domain.UserIdentity) error {
	query := `
		INSERT INTO user_identities (id, user_id, provider, provider_id, provider_email, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (provider, provider_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			provider_email = EXCLUDED.provider_email,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}

	data, err := json.Marshal(identityData(identity.Data))
	if err != nil {
		return fmt.Errorf("failed to encode identity data: %w", err)
	}

	err = r.db.DB.QueryRowContext(ctx, query,
		identity.ID,
		identity.UserID,
		identity.Provider,
		identity.ProviderID,
		identity.ProviderEmail,
		data,
		time.Now(),
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}

	return nil
}

// GetByProvider retrieves an identity by provider and provider user ID
func (r *identityRepository) GetByProvider(ctx context.Context, provider, providerID string) (*domain.UserIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM user_identities WHERE provider = $1 AND provider_id = $2`

	identity, err := scanIdentity(r.db.DB.QueryRowContext(ctx, query, provider, providerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s/%s not found: %w", provider, providerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// ListByUser retrieves all identities linked to a user
func (r *identityRepository) ListByUser(ctx context.Context, userID string) ([]*domain.UserIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM user_identities
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*domain.UserIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return identities, nil
}

func scanIdentity(row rowScanner) (*domain.UserIdentity, error) {
	identity := &domain.UserIdentity{}
	var data []byte

	err := row.Scan(
		&identity.ID,
		&identity.UserID,
		&identity.Provider,
		&identity.ProviderID,
		&identity.ProviderEmail,
		&data,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &identity.Data); err != nil {
			return nil, fmt.Errorf("failed to decode identity data: %w", err)
		}
	}

	return identity, nil
}

func identityData(data map[string]string) map[string]string {
	if data == nil {
		return map[string]string{}
	}
	return data
}
