// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultPhoto is the avatar assigned when signup does not provide one.
const DefaultPhoto = "default.jpg"

// PasswordChangeSkew is subtracted from the wall clock when recording a password
// change, so a token issued in the same request is not rejected as stale.
const PasswordChangeSkew = time.Second

// User is the persistent account record.
type User struct {
	ID          ulid.ULID     `json:"id"`
	Name        string        `json:"name" validate:"required,min=3,max=40"`
	Email       string        `json:"email" validate:"required,email,max=254"`
	Photo       string        `json:"photo"`
	Role        Role          `json:"role" validate:"required,oneof=user admin"`
	Age         *int          `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender      string        `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	ChatHistory []ChatMessage `json:"chatHistory" validate:"dive"`
	Permissions []string      `json:"permissions,omitempty"`

	PasswordHash         string     `json:"-" field:"password" validate:"required"`
	PasswordChangedAt    *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetToken   string     `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `json:"-"`

	Linked LinkedAccount `json:"linkedAccount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatMessage is one turn of the user's stored conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user model"`
	Content string `json:"content" validate:"required"`
}

// LinkedAccount holds the external mail provider grant. The account service
// stores it but never interprets it.
type LinkedAccount struct {
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	AccessTokenExpiry *time.Time `json:"accessTokenExpiry,omitempty"`
	IsAuthenticated   bool       `json:"isAuthenticated"`
}

// SignupInput is the caller-supplied data for a new account.
// PasswordConfirm is checked and then dropped; it is never stored.
type SignupInput struct {
	Name            string `json:"name" validate:"required,min=3,max=40"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Photo           string `json:"photo"`
	Age             *int   `json:"age" validate:"omitempty,min=0,max=150"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female"`
}

// Normalize trims the name and lower-cases the email.
func (in SignupInput) Normalize() SignupInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Photo = strings.TrimSpace(in.Photo)
	return in
}

// Validate checks the signup shape, including that both passwords match.
func (in SignupInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	return nil
}

// NormalizeEmail is applied to every email before it reaches storage or a lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type passwordPair struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// ValidatePasswordPair checks a new password and its confirmation.
func ValidatePasswordPair(password, confirm string) error {
	if err := validate.Struct(passwordPair{Password: password, PasswordConfirm: confirm}); err != nil {
		return validationError(err)
	}
	return nil
}

// NewUser creates an active user from validated signup input and an already
// computed password hash. The input must have been normalized.
func NewUser(in SignupInput, passwordHash string, now time.Time) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	photo := in.Photo
	if photo == "" {
		photo = DefaultPhoto
	}
	u := &User{
		ID:           ulid.Make(),
		Name:         in.Name,
		Email:        in.Email,
		Photo:        photo,
		Role:         RoleUser,
		Age:          in.Age,
		Gender:       in.Gender,
		ChatHistory:  []ChatMessage{},
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.ValidateProfile(); err != nil {
		return nil, err
	}
	return u, nil
}

// ValidateProfile checks the stored-field constraints. Repositories call it on every save.
func (u *User) ValidateProfile() error {
	if u == nil {
		return oops.Code(CodeValidation).Errorf("user cannot be nil")
	}
	if u.ID.Compare(ulid.ULID{}) == 0 {
		return oops.Code(CodeValidation).Errorf("user ID cannot be zero")
	}
	if err := validate.Struct(u); err != nil {
		return validationError(err)
	}
	if u.Email != NormalizeEmail(u.Email) {
		return oops.Code(CodeValidation).
			With("fields", map[string]string{"email": "email must be lower case"}).
			Errorf("invalid input data: email must be lower case")
	}
	return nil
}

// ChangePassword stores a new hash on an existing record and moves
// PasswordChangedAt forward, which invalidates every token issued before it.
func (u *User) ChangePassword(passwordHash string, now time.Time) {
	changed := now.Add(-PasswordChangeSkew)
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &changed
	u.UpdatedAt = now
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at issuedAt. Comparison is in whole seconds, the resolution of the token's iat claim.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < u.PasswordChangedAt.Unix()
}

// SetResetToken records a pending reset, replacing any earlier one.
func (u *User) SetResetToken(tokenHash string, expiresAt time.Time, now time.Time) {
	u.PasswordResetToken = tokenHash
	u.PasswordResetExpires = &expiresAt
	u.UpdatedAt = now
}

// ClearResetToken drops the pending reset, if any.
func (u *User) ClearResetToken(now time.Time) {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	u.UpdatedAt = now
}

// ResetExpired reports whether the pending reset is missing or past its expiry at now.
func (u *User) ResetExpired(now time.Time) bool {
	return u.PasswordResetExpires == nil || !now.Before(*u.PasswordResetExpires)
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Age = clonePtr(u.Age)
	c.PasswordChangedAt = clonePtr(u.PasswordChangedAt)
	c.PasswordResetExpires = clonePtr(u.PasswordResetExpires)
	c.Linked.AccessTokenExpiry = clonePtr(u.Linked.AccessTokenExpiry)
	c.ChatHistory = slices.Clone(u.ChatHistory)
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Visibility selects which users a repository read may return.
// Every read takes one explicitly; authentication paths always pass ActiveOnly.
type Visibility int

const (
	// ActiveOnly hides soft-deleted users.
	ActiveOnly Visibility = iota
	// IncludeInactive returns users regardless of the active flag.
	IncludeInactive
)

// Admits reports whether u is visible under v.
func (v Visibility) Admits(u *User) bool {
	return v == IncludeInactive || u.Active
}

// String returns a label for logs.
func (v Visibility) String() string {
	if v == IncludeInactive {
		return "include_inactive"
	}
	return "active_only"
}

// UserRepository manages user persistence.
type UserRepository interface {
	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id ulid.ULID, vis Visibility) (*User, error)

	// FindByEmail retrieves a user by email (case-insensitive).
	FindByEmail(ctx context.Context, email string, vis Visibility) (*User, error)

	// FindByResetHash retrieves the user holding the given reset-token fingerprint.
	// Expiry is not checked here.
	FindByResetHash(ctx context.Context, tokenHash string, vis Visibility) (*User, error)

	// Save inserts or fully overwrites the user. It rejects records that fail
	// ValidateProfile or reuse another user's email with CodeValidation.
	Save(ctx context.Context, user *User) error
}
