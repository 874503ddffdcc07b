package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/flowboard/internal/authz"
	"github.com/yakoovad/flowboard/internal/db"
	"github.com/yakoovad/flowboard/internal/model"
	"github.com/yakoovad/flowboard/internal/repository"
	"github.com/yakoovad/flowboard/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultResetTokenTTL = time.Hour
	minSearchTermLength  = 2
)

// Mailer delivers outbound account mail.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetLink string) error
}

type UserService struct {
	tx       db.Transactor
	guard    *authz.Guard
	now      func() time.Time
	hashCost int

	resetTTL    time.Duration
	frontendURL string

	users  repository.UserRepository
	mailer Mailer
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{
		tx:       tx,
		guard:    authz.NewGuard(),
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
		resetTTL: DefaultResetTokenTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *UserService) Register(ctx context.Context, dto *model.UserCreate) (*model.User, *Error) {
	email := normalizeEmail(dto.Email)
	l := logger.FromContext(ctx).With(zap.String("email", email))
	l.Info("registering user")

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), u.hashCost)
	if err != nil {
		l.Error("failed to hash password", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to register user")
	}

	row := &repository.User{
		Username:     dto.Username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		Role:         model.RoleBusinessUser,
		AvatarURL:    dto.AvatarURL,
	}

	err = u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := u.users.GetByEmail(txCtx, email)
		switch {
		case err == nil:
			l.Warn("email already registered")
			return NewError(ErrorCodeConflict, "email already registered")
		case !errors.Is(err, repository.ErrNotFound):
			l.Error("failed to look up email", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to register user")
		}

		err = u.users.Create(txCtx, row)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			l.Warn("email already registered")
			return NewError(ErrorCodeConflict, "email already registered")
		case err != nil:
			l.Error("failed to create user", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to register user")
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to register user")
	}

	return toUser(row), nil
}

func (u *UserService) GetProfile(ctx context.Context, userID int64) (*model.User, *Error) {
	row, serr := u.getUser(ctx, userID)
	if serr != nil {
		return nil, serr
	}
	return toUser(row), nil
}

func (u *UserService) GetUserById(ctx context.Context, userID int64) (*model.User, *Error) {
	return u.GetProfile(ctx, userID)
}

func (u *UserService) UpdateProfile(ctx context.Context, userID int64, dto *model.UserUpdate) (*model.User, *Error) {
	email := normalizeEmail(dto.Email)
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Info("updating profile")

	var user *model.User
	err := u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		other, err := u.users.GetByEmail(txCtx, email)
		switch {
		case err == nil && other.ID != userID:
			l.Warn("email taken by another user", zap.String("email", email))
			return NewError(ErrorCodeConflict, "email already registered")
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			l.Error("failed to look up email", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update profile")
		}

		row, err := u.users.Patch(txCtx, &repository.UserPatch{
			ID:        userID,
			Username:  &dto.Username,
			Email:     &email,
			FirstName: &dto.FirstName,
			LastName:  &dto.LastName,
			AvatarURL: dto.AvatarURL,
		})
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "user not found")
		case errors.Is(err, repository.ErrAlreadyExists):
			return NewError(ErrorCodeConflict, "email already registered")
		case err != nil:
			l.Error("failed to update profile", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update profile")
		}

		user = toUser(row)
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update profile")
	}

	return user, nil
}

func (u *UserService) ChangePassword(ctx context.Context, userID int64, dto *model.PasswordChange) *Error {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))
	l.Info("changing password")

	row, serr := u.getUser(ctx, userID)
	if serr != nil {
		return serr
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(dto.CurrentPassword)); err != nil {
		l.Warn("current password mismatch")
		return NewError(ErrorCodeBadRequest, "current password is incorrect")
	}

	return u.setPassword(ctx, userID, dto.NewPassword, false)
}

// ChangeUserRole trusts the stored role of the actor, not the token claim.
func (u *UserService) ChangeUserRole(ctx context.Context, dto *model.RoleChange, actor model.Actor) (*model.User, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actor.UserID), zap.Int64("user_id", dto.UserID))
	l.Info("changing user role", zap.String("role", dto.NewRole))

	stored, err := u.users.Get(ctx, actor.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("actor not found")
		return nil, NewError(ErrorCodeForbidden, "only team leads can change roles")
	case err != nil:
		l.Error("failed to get actor", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to change role")
	}

	res := u.guard.CanPerform(model.Actor{UserID: stored.ID, Role: stored.Role}, authz.ActionUserChangeRole, authz.Resource{})
	if !res.Allowed() {
		l.Warn("role change denied", zap.Stringer("reason", res.Reason))
		return nil, NewError(ErrorCodeForbidden, "only team leads can change roles")
	}

	if _, serr := u.getUser(ctx, dto.UserID); serr != nil {
		return nil, serr
	}

	role, err := model.ParseRole(dto.NewRole)
	if err != nil {
		l.Warn("unknown role", zap.Error(err))
		return nil, NewError(ErrorCodeBadRequest, "unknown role")
	}

	row, err := u.users.Patch(ctx, &repository.UserPatch{ID: dto.UserID, Role: &role})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "user not found")
	case err != nil:
		l.Error("failed to change role", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to change role")
	}

	return toUser(row), nil
}

func (u *UserService) GetAllUsers(ctx context.Context) ([]*model.User, *Error) {
	rows, err := u.users.List(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list users", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get users")
	}
	return toUsers(rows), nil
}

// SearchUsers matches full name, username or email. Terms shorter than two
// characters match nothing.
func (u *UserService) SearchUsers(ctx context.Context, term string) ([]*model.User, *Error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchTermLength {
		return []*model.User{}, nil
	}

	rows, err := u.users.Search(ctx, term)
	if err != nil {
		logger.FromContext(ctx).Error("failed to search users", zap.String("term", term), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to search users")
	}
	return toUsers(rows), nil
}

// RequestPasswordReset never reveals whether the email is registered.
func (u *UserService) RequestPasswordReset(ctx context.Context, email string) *Error {
	email = normalizeEmail(email)
	l := logger.FromContext(ctx).With(zap.String("email", email))
	l.Info("password reset requested")

	row, err := u.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Debug("password reset for unknown email")
		return nil
	case err != nil:
		l.Error("failed to look up email", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to request password reset")
	}

	token := uuid.NewString()
	expiry := u.now().Add(u.resetTTL)
	if _, err = u.users.Patch(ctx, &repository.UserPatch{
		ID:          row.ID,
		ResetToken:  &token,
		ResetExpiry: &expiry,
	}); err != nil {
		l.Error("failed to store reset token", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to request password reset")
	}

	if err = u.mailer.SendPasswordReset(ctx, row.Email, u.resetLink(token)); err != nil {
		l.Error("failed to send reset mail", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to send password reset mail")
	}

	return nil
}

func (u *UserService) ResetPassword(ctx context.Context, dto *model.PasswordReset) *Error {
	l := logger.FromContext(ctx)
	l.Info("resetting password")

	row, err := u.users.GetByResetToken(ctx, dto.Token, u.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("invalid or expired reset token")
		return NewError(ErrorCodeBadRequest, "invalid or expired reset token")
	case err != nil:
		l.Error("failed to look up reset token", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to reset password")
	}

	return u.setPassword(ctx, row.ID, dto.NewPassword, true)
}

func (u *UserService) setPassword(ctx context.Context, userID int64, password string, clearToken bool) *Error {
	l := logger.FromContext(ctx).With(zap.Int64("user_id", userID))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.hashCost)
	if err != nil {
		l.Error("failed to hash password", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to set password")
	}

	h := string(hash)
	_, err = u.users.Patch(ctx, &repository.UserPatch{
		ID:              userID,
		PasswordHash:    &h,
		ClearResetToken: clearToken,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "user not found")
	case err != nil:
		l.Error("failed to store password", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to set password")
	}
	return nil
}

func (u *UserService) resetLink(token string) string {
	return strings.TrimRight(u.frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

func (u *UserService) getUser(ctx context.Context, userID int64) (*repository.User, *Error) {
	row, err := u.users.Get(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.FromContext(ctx).Warn("user not found", zap.Int64("user_id", userID))
		return nil, NewError(ErrorCodeNotFound, "user not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to get user", zap.Int64("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}
	return row, nil
}

func (u *UserService) WithUserRepo(r repository.UserRepository) *UserService {
	u.users = r
	return u
}

func (u *UserService) WithMailer(m Mailer) *UserService {
	u.mailer = m
	return u
}

func (u *UserService) WithResetTTL(ttl time.Duration) *UserService {
	u.resetTTL = ttl
	return u
}

func (u *UserService) WithFrontendURL(frontendURL string) *UserService {
	u.frontendURL = frontendURL
	return u
}

func (u *UserService) WithClock(now func() time.Time) *UserService {
	u.now = now
	return u
}

// WithHashCost sets the bcrypt cost for new password hashes.
func (u *UserService) WithHashCost(cost int) *UserService {
	u.hashCost = cost
	return u
}
