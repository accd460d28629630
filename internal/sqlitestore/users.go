package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/store"
)

// UserRepository implements store.UserRepository.
type UserRepository struct{}

var _ store.UserRepository = UserRepository{}

const userColumns = "id, login_email, contact_email, external_uid, oauth_provider, language, created_at, updated_at"

func (UserRepository) GetByID(ctx context.Context, t store.Tx, id int64) (*store.User, error) {
	row := queryer(t).QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (UserRepository) GetByExternalUID(ctx context.Context, t store.Tx, provider, uid string) (*store.User, error) {
	row := queryer(t).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE oauth_provider = ? AND external_uid = ?", provider, uid)

	return scanUser(row)
}

func (UserRepository) Create(ctx context.Context, t store.Tx, u *store.User) (*store.User, error) {
	now := nowString()

	res, err := queryer(t).ExecContext(ctx,
		`INSERT INTO users (login_email, contact_email, external_uid, oauth_provider, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.LoginEmail, u.ContactEmail, u.ExternalUID, u.OAuthProvider, u.Language, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: creating user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading new user id: %w", err)
	}

	return UserRepository{}.GetByID(ctx, t, id)
}

func (UserRepository) Update(ctx context.Context, t store.Tx, u *store.User) error {
	_, err := queryer(t).ExecContext(ctx,
		`UPDATE users SET login_email = ?, contact_email = ?, external_uid = ?, oauth_provider = ?,
		 language = ?, updated_at = ? WHERE id = ?`,
		u.LoginEmail, u.ContactEmail, u.ExternalUID, u.OAuthProvider, u.Language, nowString(), u.ID)
	if err != nil {
		return fmt.Errorf("sqlitestore: updating user %d: %w", u.ID, err)
	}

	return nil
}

func (UserRepository) EnsureByID(ctx context.Context, t store.Tx, u *store.User) (*store.User, error) {
	existing, err := UserRepository{}.GetByID(ctx, t, u.ID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := nowString()

	_, err = queryer(t).ExecContext(ctx,
		`INSERT INTO users (id, login_email, contact_email, external_uid, oauth_provider, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.LoginEmail, u.ContactEmail, u.ExternalUID, u.OAuthProvider, u.Language, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: ensuring user %d: %w", u.ID, err)
	}

	return UserRepository{}.GetByID(ctx, t, u.ID)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User

	var createdAt, updatedAt string

	err := row.Scan(&u.ID, &u.LoginEmail, &u.ContactEmail, &u.ExternalUID, &u.OAuthProvider, &u.Language, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning user: %w", err)
	}

	u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing user created_at: %w", err)
	}

	u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing user updated_at: %w", err)
	}

	return &u, nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
