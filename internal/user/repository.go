package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/velstore/accounts-api/internal/database"
	"github.com/velstore/accounts-api/internal/httputil"
)

var ErrNotFound = errors.New("user not found")

// ParseID parses a path identifier, reporting malformed values as an
// invalid-identifier failure for the normalizer.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &httputil.InvalidIDError{Field: "id"}
	}
	return id, nil
}

// Store is the persistence surface the handlers and the auth service
// depend on.
type Store interface {
	Create(ctx context.Context, name, email, passwordHash string, avatar Avatar) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, email string, avatar *Avatar) error
	UpdateRole(ctx context.Context, id uuid.UUID, name, email, role string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	ConsumeResetToken(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repository handles user data persistence
type Repository struct {
	db *bun.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user with its avatar reference.
func (r *Repository) Create(ctx context.Context, name, email, passwordHash string, avatar Avatar) (*User, error) {
	dbUser := &database.User{
		Name:           name,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           RoleUser,
		AvatarPublicID: &avatar.PublicID,
		AvatarURL:      &avatar.URL,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return nil, &httputil.DuplicateKeyError{Field: "email"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email, password hash included.
// Lookup is case-insensitive.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("lower(email) = lower(?)", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByResetTokenHash retrieves the user holding an unexpired reset token.
func (r *Repository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("reset_token_hash = ?", tokenHash).
		Where("reset_token_expires_at > ?", time.Now()).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by reset token: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// List returns every user. No pagination; the admin surface returns the
// full collection.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	var dbUsers []database.User
	err := r.db.NewSelect().
		Model(&dbUsers).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]User, 0, len(dbUsers))
	for i := range dbUsers {
		users = append(users, *mapDBUserToModel(&dbUsers[i]))
	}
	return users, nil
}

// UpdateProfile updates name and email, and swaps the avatar reference
// when a replacement is supplied.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string, avatar *Avatar) error {
	q := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("name = ?", name).
		Set("email = ?", email).
		Set("updated_at = NOW()").
		Where("id = ?", id)

	if avatar != nil {
		q = q.Set("avatar_public_id = ?", avatar.PublicID).
			Set("avatar_url = ?", avatar.URL)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return &httputil.DuplicateKeyError{Field: "email"}
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return requireRowsAffected(result)
}

// UpdateRole updates name, email and role for the target user.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, name, email, role string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("name = ?", name).
		Set("email = ?", email).
		Set("role = ?", role).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return &httputil.DuplicateKeyError{Field: "email"}
		}
		return fmt.Errorf("failed to update role: %w", err)
	}

	return requireRowsAffected(result)
}

// UpdatePassword updates a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return requireRowsAffected(result)
}

// SetResetToken stores the pending reset-token hash and expiry. Only the
// two reset columns are touched, so an otherwise-invalid record cannot
// block token issuance.
func (r *Repository) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token_hash = ?", tokenHash).
		Set("reset_token_expires_at = ?", expiresAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	return requireRowsAffected(result)
}

// ClearResetToken drops any pending reset state, e.g. after a failed
// email send.
func (r *Repository) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token_hash = NULL").
		Set("reset_token_expires_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}

	return nil
}

// ConsumeResetToken writes the new password hash and clears both reset
// fields in a single update, so a token can never be replayed.
func (r *Repository) ConsumeResetToken(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_token_hash = NULL").
		Set("reset_token_expires_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	return requireRowsAffected(result)
}

// Delete removes the user row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireRowsAffected(result)
}

func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	u := &User{
		ID:                  dbu.ID,
		Name:                dbu.Name,
		Email:               dbu.Email,
		PasswordHash:        dbu.PasswordHash,
		Role:                dbu.Role,
		ResetTokenHash:      dbu.ResetTokenHash,
		ResetTokenExpiresAt: dbu.ResetTokenExpiresAt,
		CreatedAt:           dbu.CreatedAt,
		UpdatedAt:           dbu.UpdatedAt,
	}
	if dbu.AvatarPublicID != nil && dbu.AvatarURL != nil {
		u.Avatar = &Avatar{PublicID: *dbu.AvatarPublicID, URL: *dbu.AvatarURL}
	}
	return u
}
