// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/parlance-ai/parlance/pkg/errutil"
)

// dummyPasswordHash is verified against when the email is unknown, so a
// failed login costs the same whether or not the account exists.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

var tracer = otel.Tracer("parlance/auth")

// ResetMailSubject is the subject line of a reset mail whose token lives for ttl.
func ResetMailSubject(ttl time.Duration) string {
	validity := ttl.String()
	if ttl > 0 && ttl%time.Minute == 0 {
		n := int(ttl / time.Minute)
		validity = fmt.Sprintf("%d minutes", n)
		if n == 1 {
			validity = "1 minute"
		}
	}
	return "Your password reset token (valid for " + validity + ")"
}

// Operation names reported to Metrics.
const (
	OpSignup         = "signup"
	OpLogin          = "login"
	OpUpdatePassword = "update_password"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
)

// Service runs the credential lifecycle: signup, login, password change and
// forgotten-password recovery. Each successful operation returns a fresh
// session token for the affected user.
type Service struct {
	users     UserRepository
	hasher    PasswordHasher
	tokens    *TokenService
	resets    *PasswordResetService
	mailer    Mailer
	resetLink string
	now       func() time.Time
	metrics   Metrics
	logger    *slog.Logger
}

// NewService creates a new Service.
func NewService(
	users UserRepository,
	hasher PasswordHasher,
	tokens *TokenService,
	resets *PasswordResetService,
	opts ...Option,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset service is required")
	}
	o := applyOptions(opts)
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		resets:    resets,
		mailer:    o.mailer,
		resetLink: o.resetLink,
		now:       o.now,
		metrics:   o.metrics,
		logger:    o.logger,
	}, nil
}

// Signup creates an active user with role "user" and logs them in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (user *User, token string, err error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer func() { s.finish(span, OpSignup, err) }()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", oops.With("operation", "hash password").Wrap(err)
	}

	user, err = NewUser(in, hash, s.now())
	if err != nil {
		return nil, "", err
	}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, "", storeError("create user", err)
	}

	token, _, err = s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID.String())
	return user, token, nil
}

// Login verifies an email and password pair. Unknown emails and wrong
// passwords fail identically with CodeInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (user *User, token string, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { s.finish(span, OpLogin, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", oops.Code(CodeValidation).Errorf("please provide email and password")
	}

	user, lookupErr := s.users.FindByEmail(ctx, email, ActiveOnly)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case IsNotFound(lookupErr):
		user = nil
	default:
		return nil, "", storeError("find user by email", lookupErr)
	}

	// Always verify so response time does not reveal whether the account exists.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if user == nil {
		return nil, "", invalidCredentials()
	}
	if verifyErr != nil {
		return nil, "", oops.With("operation", "verify password").With("user_id", user.ID.String()).Wrap(verifyErr)
	}
	if !valid {
		return nil, "", invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, _, err = s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// upgradeHash rehashes with current parameters. The credential itself is
// unchanged, so PasswordChangedAt is left alone and existing sessions survive.
// Failures are logged; login still succeeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	previous := user.PasswordHash
	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		user.PasswordHash = previous
		errutil.LogError(s.logger, "password hash upgrade failed", storeError("save upgraded hash", err))
	}
}

// UpdatePassword changes the password of an authenticated user after
// re-checking the current one. Tokens issued before the change stop
// authenticating; the returned token is issued after it.
func (s *Service) UpdatePassword(
	ctx context.Context,
	current *User,
	currentPassword, password, confirm string,
) (user *User, token string, err error) {
	ctx, span := tracer.Start(ctx, "auth.update_password")
	defer func() { s.finish(span, OpUpdatePassword, err) }()

	if current == nil {
		return nil, "", unauthenticated(ReasonMissingToken, "you are not logged in, please log in to get access")
	}
	if currentPassword == "" {
		return nil, "", oops.Code(CodeValidation).Errorf("please provide your current password")
	}

	// Re-read so the check runs against the stored hash, not a request-scoped copy.
	user, err = s.users.FindByID(ctx, current.ID, ActiveOnly)
	if err != nil {
		if IsNotFound(err) {
			return nil, "", unauthenticated(ReasonUserGone, "the user belonging to this token no longer exists")
		}
		return nil, "", storeError("find user by id", err)
	}

	valid, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return nil, "", oops.With("operation", "verify password").With("user_id", user.ID.String()).Wrap(err)
	}
	if !valid {
		return nil, "", oops.Code(CodeInvalidCredentials).Errorf("your current password is wrong")
	}

	if err := ValidatePasswordPair(password, confirm); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", oops.With("operation", "hash password").Wrap(err)
	}
	user.ChangePassword(hash, s.now())
	if err := s.users.Save(ctx, user); err != nil {
		return nil, "", storeError("save new password", err)
	}

	token, _, err = s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "password updated", "user_id", user.ID.String())
	return user, token, nil
}

// ForgotPassword starts a reset and mails the link. If the mail cannot be
// sent the pending reset is cleared again and CodeDeliveryFailed is returned;
// the caller may retry.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer func() { s.finish(span, OpForgotPassword, err) }()

	token, user, err := s.resets.RequestReset(ctx, email)
	if err != nil {
		return err
	}

	body := resetMailBody(s.resetURL(token))
	if sendErr := s.mailer.Send(ctx, user.Email, ResetMailSubject(s.resets.TTL()), body); sendErr != nil {
		errutil.LogError(s.logger, "reset mail delivery failed", oops.With("user_id", user.ID.String()).Wrap(sendErr))
		if cancelErr := s.resets.CancelReset(ctx, user); cancelErr != nil {
			errutil.LogError(s.logger, "failed to roll back reset token", cancelErr)
		}
		return oops.Code(CodeDeliveryFailed).
			With("retryable", true).
			Errorf("there was an error sending the email, try again later")
	}

	s.logger.InfoContext(ctx, "reset token sent", "user_id", user.ID.String())
	return nil
}

// ResetPassword consumes a reset token, sets the new password and logs the user in.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) (user *User, session string, err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { s.finish(span, OpResetPassword, err) }()

	user, err = s.resets.ConsumeReset(ctx, token, password, confirm)
	if err != nil {
		return nil, "", err
	}

	session, _, err = s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, session, nil
}

func (s *Service) resetURL(token string) string {
	if strings.HasSuffix(s.resetLink, "/") {
		return s.resetLink + token
	}
	return s.resetLink + "/" + token
}

func resetMailBody(url string) string {
	return fmt.Sprintf(
		"Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s.\n"+
			"If you didn't forget your password, please ignore this email!",
		url,
	)
}

// finish ends the operation span and counts its outcome.
func (s *Service) finish(span trace.Span, operation string, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	s.metrics.RecordOperation(operation, outcome)
}

// Outcome is the metrics label for an operation result: "success", or the
// lower-cased error code.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	code := errutil.Code(err)
	if code == "" {
		return "error"
	}
	return strings.ToLower(code)
}
