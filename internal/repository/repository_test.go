package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return &database.Postgres{DB: db}, mock
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.User{Name: "Ada", Email: "ada@example.com"})

	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepository_GetByEmailIgnoresCase(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("Ada@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "email_verified_at", "created_at", "updated_at"}).
			AddRow("u-1", "Ada", "ada@example.com", "hash", now, now, now))

	user, err := repo.GetByEmail(context.Background(), "Ada@Example.com")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.True(t, user.HasVerifiedEmail())
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func magicTokenRows(usedAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "used_at", "remember", "redirect_to",
		"ip", "user_agent", "used_ip", "used_ua", "created_at",
	}).AddRow("tok-1", "u-1", "hash", time.Now().Add(time.Minute), usedAt, true, "/home",
		"10.0.0.1", "agent", nil, nil, time.Now())
}

func TestMagicLoginTokenRepository_ConsumeMarksUsed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMagicLoginTokenRepository(db)
	usage := domain.MagicLinkUsage{UsedAt: time.Now(), IP: "10.0.0.2", UserAgent: "browser"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM magic_login_tokens WHERE id = \$1 FOR UPDATE`).
		WithArgs("tok-1").
		WillReturnRows(magicTokenRows(nil))
	mock.ExpectExec(`UPDATE magic_login_tokens\s+SET used_at = \$2, used_ip = \$3, used_ua = \$4\s+WHERE id = \$1 AND used_at IS NULL`).
		WithArgs("tok-1", usage.UsedAt, "10.0.0.2", "browser").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen *domain.MagicLoginToken
	err := repo.Consume(context.Background(), "tok-1", usage, func(token *domain.MagicLoginToken) error {
		seen = token
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.Remember)
	assert.Equal(t, "/home", seen.RedirectTo)
}

func TestMagicLoginTokenRepository_ConsumeRollsBackWhenCheckFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMagicLoginTokenRepository(db)
	checkErr := errors.New("expired")

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(magicTokenRows(nil))
	mock.ExpectRollback()

	err := repo.Consume(context.Background(), "tok-1", domain.MagicLinkUsage{}, func(*domain.MagicLoginToken) error {
		return checkErr
	})

	assert.ErrorIs(t, err, checkErr)
}

func TestMagicLoginTokenRepository_ConsumeLosesRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMagicLoginTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(magicTokenRows(nil))
	mock.ExpectExec(`UPDATE magic_login_tokens`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Consume(context.Background(), "tok-1", domain.MagicLinkUsage{UsedAt: time.Now()}, func(*domain.MagicLoginToken) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrTokenConsumed)
}

func TestMagicLoginTokenRepository_ConsumeMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMagicLoginTokenRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.Consume(context.Background(), "tok-1", domain.MagicLinkUsage{}, func(*domain.MagicLoginToken) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestMagicLoginTokenRepository_DeleteStaleForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMagicLoginTokenRepository(db)
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(`DELETE FROM magic_login_tokens\s+WHERE user_id = \$1 AND used_at IS NULL AND expires_at < \$2`).
		WithArgs("u-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteStaleForUser(context.Background(), "u-1", cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAccessTokenRepository_DeleteIsOwnerScoped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccessTokenRepository(db)

	mock.ExpectExec(`DELETE FROM access_tokens WHERE id = \$1 AND user_id = \$2`).
		WithArgs("tok-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "tok-1", "intruder")

	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAccessTokenRepository_ListByUserEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccessTokenRepository(db)

	mock.ExpectQuery(`FROM access_tokens\s+WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "secret_hash", "last_used_at", "created_at"}))

	tokens, err := repo.ListByUser(context.Background(), "u-1")

	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)
}

func TestWebAuthnCredentialRepository_UpdateSignCountRegression(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebAuthnCredentialRepository(db)

	mock.ExpectExec(`WHERE credential_id = \$1 AND sign_count <= \$2`).
		WithArgs("cred-1", int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSignCount(context.Background(), "cred-1", 4, time.Now())

	assert.ErrorIs(t, err, ErrSignCountRegression)
}

func TestWebAuthnCredentialRepository_UpsertForeignCredential(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebAuthnCredentialRepository(db)

	mock.ExpectQuery(`ON CONFLICT \(credential_id\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	err := repo.Upsert(context.Background(), &domain.WebAuthnCredential{UserID: "u-2", CredentialID: "cred-1"})

	assert.ErrorIs(t, err, ErrCredentialOwnedByOtherUser)
}

func TestWebAuthnCredentialRepository_UpsertWritesLastUsedAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebAuthnCredentialRepository(db)

	usedAt := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	createdAt := usedAt.Add(-time.Hour)
	credential := &domain.WebAuthnCredential{
		ID:           "c-1",
		UserID:       "u-1",
		CredentialID: "cred-1",
		Name:         "key",
		PublicKey:    "pk",
		SignCount:    3,
		Transports:   []string{"usb"},
		LastUsedAt:   &usedAt,
		CreatedAt:    createdAt,
	}

	mock.ExpectQuery(`last_used_at, created_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)[\s\S]*last_used_at = EXCLUDED\.last_used_at`).
		WithArgs("c-1", "u-1", "cred-1", "key", "pk", int64(3), sqlmock.AnyArg(), usedAt, createdAt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("c-1", createdAt))

	require.NoError(t, repo.Upsert(context.Background(), credential))
	assert.Equal(t, "c-1", credential.ID)
}

func TestWebAuthnCredentialRepository_ListByUserDecodesTransports(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebAuthnCredentialRepository(db)

	mock.ExpectQuery(`FROM webauthn_credentials\s+WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "credential_id", "name", "public_key", "sign_count", "transports", "last_used_at", "created_at"}).
			AddRow("c-1", "u-1", "cred-1", "key", "pk", int64(7), []byte("{usb,nfc}"), nil, time.Now()))

	creds, err := repo.ListByUser(context.Background(), "u-1")

	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, uint32(7), creds[0].SignCount)
	assert.Equal(t, []string{"usb", "nfc"}, creds[0].Transports)
}

func TestIdentityRepository_UpsertReturnsStoredRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdentityRepository(db)
	created := time.Now().Add(-time.Hour)
	updated := time.Now()

	mock.ExpectQuery(`ON CONFLICT \(provider, provider_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "u-1", "github", "42", "octo@example.com", []byte(`{"name":"Octo"}`), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("ident-1", created, updated))

	identity := &domain.UserIdentity{
		UserID:        "u-1",
		Provider:      "github",
		ProviderID:    "42",
		ProviderEmail: "octo@example.com",
		Data:          map[string]string{"name": "Octo"},
	}
	err := repo.Upsert(context.Background(), identity)

	require.NoError(t, err)
	assert.Equal(t, "ident-1", identity.ID)
	assert.Equal(t, created, identity.CreatedAt)
}
