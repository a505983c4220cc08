// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package postgres provides the PostgreSQL implementation of auth.UserRepository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parlance-ai/parlance/internal/auth"
)

// emailConstraint is the unique index that enforces one account per email.
const emailConstraint = "users_email_key"

// DB is the subset of *pgxpool.Pool the repository uses.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
	SELECT id, name, email, photo, role, age, gender,
	       chat_history, permissions,
	       password_hash, password_changed_at,
	       password_reset_token, password_reset_expires, active,
	       linked_access_token, linked_refresh_token, linked_access_token_expiry, linked_authenticated,
	       created_at, updated_at
	FROM users
`

// visibilityClause is appended after a WHERE condition; $2 is the include-inactive flag.
const visibilityClause = ` AND (active OR $2)`

// FindByID retrieves a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id ulid.ULID, vis auth.Visibility) (*auth.User, error) {
	row := r.db.QueryRow(ctx, selectUser+`WHERE id = $1`+visibilityClause, id.String(), vis == auth.IncludeInactive)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) FindByEmail(ctx context.Context, email string, vis auth.Visibility) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	row := r.db.QueryRow(ctx, selectUser+`WHERE email = $1`+visibilityClause, email, vis == auth.IncludeInactive)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// FindByResetHash retrieves the user holding the given reset-token fingerprint.
// The fingerprint is never logged or attached to errors.
func (r *UserRepository) FindByResetHash(ctx context.Context, tokenHash string, vis auth.Visibility) (*auth.User, error) {
	if tokenHash == "" {
		return nil, oops.Code(auth.CodeUserNotFound).Wrap(auth.ErrNotFound)
	}
	row := r.db.QueryRow(ctx, selectUser+`WHERE password_reset_token = $1`+visibilityClause, tokenHash, vis == auth.IncludeInactive)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by reset token").Wrap(err)
	}
	return user, nil
}

// Save inserts or fully overwrites the user.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	if err := user.ValidateProfile(); err != nil {
		return err
	}

	chatJSON, err := json.Marshal(nonNil(user.ChatHistory))
	if err != nil {
		return oops.With("operation", "marshal chat history").Wrap(err)
	}
	permsJSON, err := json.Marshal(nonNil(user.Permissions))
	if err != nil {
		return oops.With("operation", "marshal permissions").Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO users (
			id, name, email, photo, role, age, gender,
			chat_history, permissions,
			password_hash, password_changed_at,
			password_reset_token, password_reset_expires, active,
			linked_access_token, linked_refresh_token, linked_access_token_expiry, linked_authenticated,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			photo = EXCLUDED.photo,
			role = EXCLUDED.role,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			chat_history = EXCLUDED.chat_history,
			permissions = EXCLUDED.permissions,
			password_hash = EXCLUDED.password_hash,
			password_changed_at = EXCLUDED.password_changed_at,
			password_reset_token = EXCLUDED.password_reset_token,
			password_reset_expires = EXCLUDED.password_reset_expires,
			active = EXCLUDED.active,
			linked_access_token = EXCLUDED.linked_access_token,
			linked_refresh_token = EXCLUDED.linked_refresh_token,
			linked_access_token_expiry = EXCLUDED.linked_access_token_expiry,
			linked_authenticated = EXCLUDED.linked_authenticated,
			updated_at = EXCLUDED.updated_at
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.Photo,
		string(user.Role),
		user.Age,
		nullString(user.Gender),
		chatJSON,
		permsJSON,
		user.PasswordHash,
		user.PasswordChangedAt,
		nullString(user.PasswordResetToken),
		user.PasswordResetExpires,
		user.Active,
		nullString(user.Linked.AccessToken),
		nullString(user.Linked.RefreshToken),
		user.Linked.AccessTokenExpiry,
		user.Linked.IsAuthenticated,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return saveError(user, err)
	}
	return nil
}

func saveError(user *auth.User, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailConstraint:
			return oops.Code(auth.CodeValidation).
				With("fields", map[string]string{"email": "email is already in use"}).
				Errorf("invalid input data: email is already in use")
		case pgErr.Code == pgerrcode.CheckViolation:
			return oops.Code(auth.CodeValidation).
				With("constraint", pgErr.ConstraintName).
				Errorf("invalid input data: %s", pgErr.Message)
		}
	}
	return oops.With("operation", "upsert user").
		With("id", user.ID.String()).
		Wrap(err)
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr         string
		role          string
		gender        *string
		chatJSON      []byte
		permsJSON     []byte
		resetToken    *string
		linkedAccess  *string
		linkedRefresh *string
		user          auth.User
	)

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.Photo,
		&role,
		&user.Age,
		&gender,
		&chatJSON,
		&permsJSON,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&resetToken,
		&user.PasswordResetExpires,
		&user.Active,
		&linkedAccess,
		&linkedRefresh,
		&user.Linked.AccessTokenExpiry,
		&user.Linked.IsAuthenticated,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap; pgx.ErrNoRows must stay matchable
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	user.Role = auth.Role(role)
	user.Gender = deref(gender)
	user.PasswordResetToken = deref(resetToken)
	user.Linked.AccessToken = deref(linkedAccess)
	user.Linked.RefreshToken = deref(linkedRefresh)

	user.ChatHistory = []auth.ChatMessage{}
	if len(chatJSON) > 0 {
		if err := json.Unmarshal(chatJSON, &user.ChatHistory); err != nil {
			return nil, oops.With("operation", "unmarshal chat history").With("id", idStr).Wrap(err)
		}
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &user.Permissions); err != nil {
			return nil, oops.With("operation", "unmarshal permissions").With("id", idStr).Wrap(err)
		}
	}

	normalizeTimes(&user)
	return &user, nil
}

// normalizeTimes converts scanned timestamps to UTC so records compare equal
// regardless of the session time zone.
func normalizeTimes(u *auth.User) {
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	for _, p := range []**time.Time{&u.PasswordChangedAt, &u.PasswordResetExpires, &u.Linked.AccessTokenExpiry} {
		if *p != nil {
			t := (*p).UTC()
			*p = &t
		}
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
