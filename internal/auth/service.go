package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/velstore/accounts-api/internal/httputil"
	"github.com/velstore/accounts-api/internal/logging"
	"github.com/velstore/accounts-api/internal/media"
	"github.com/velstore/accounts-api/internal/user"
)

// Validation and authentication failures whose status and message reach
// the client unchanged through the normalizer.
var (
	errMissingCredentials  = httputil.NewError("Please enter email and password", http.StatusBadRequest)
	errInvalidCredentials  = httputil.NewError("Invalid details", http.StatusUnauthorized)
	errUserNotFound        = httputil.NewError("User not found", http.StatusNotFound)
	errResetTokenInvalid   = httputil.NewError("Reset Password Token is invalid or has been expired", http.StatusBadRequest)
	errPasswordMismatch    = httputil.NewError("Password does not match", http.StatusBadRequest)
	errOldPasswordMismatch = httputil.NewError("Old password is incorrect", http.StatusBadRequest)
	errMissingFields       = httputil.NewError("Please enter name, email and password", http.StatusBadRequest)
	errMissingAvatar       = httputil.NewError("Please provide an avatar image", http.StatusBadRequest)
	errInvalidEmailFormat  = httputil.NewError("Please enter a valid email", http.StatusBadRequest)
	errPasswordTooShort    = httputil.NewError("Password must be at least 8 characters", http.StatusBadRequest)
)

// Mailer delivers account email.
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// Service handles account business logic: registration, sessions,
// password lifecycle and profile updates.
type Service struct {
	users         user.Store
	avatars       media.Store
	mailer        Mailer
	logger        *logging.Logger
	resetTokenTTL time.Duration
}

func NewService(
	users user.Store,
	avatars media.Store,
	mailer Mailer,
	logger *logging.Logger,
	resetTokenTTL time.Duration,
) *Service {
	return &Service{
		users:         users,
		avatars:       avatars,
		mailer:        mailer,
		logger:        logger,
		resetTokenTTL: resetTokenTTL,
	}
}

// Register uploads the avatar, creates the account with a hashed
// password and returns the new user.
func (s *Service) Register(ctx context.Context, name, email, password, avatarPayload string) (*user.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		return nil, errMissingFields
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < 8 {
		return nil, errPasswordTooShort
	}
	if strings.TrimSpace(avatarPayload) == "" {
		return nil, errMissingAvatar
	}

	// Avatar upload is a precondition for account creation
	asset, err := s.avatars.Upload(ctx, avatarPayload)
	if err != nil {
		return nil, httputil.NewError(err.Error(), http.StatusInternalServerError)
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, name, email, passwordHash, user.Avatar{
		PublicID: asset.PublicID,
		URL:      asset.URL,
	})
	if err != nil {
		// Compensate for the already-uploaded image; a leaked delete is
		// not worth failing over.
		if delErr := s.avatars.Delete(ctx, asset.PublicID); delErr != nil {
			s.logger.Warn("failed to delete avatar after aborted registration",
				"public_id", asset.PublicID, "error", delErr)
		}
		return nil, err
	}

	return newUser, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password are indistinguishable in the result.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, error) {
	if email == "" || password == "" {
		return nil, errMissingCredentials
	}

	existing, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !verifyPassword(existing.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	return existing, nil
}

// ForgotPassword issues a single-use reset token, stores only its hash
// and expiry, and mails the unhashed token. A failed send rolls the
// pending state back. Returns the recipient address.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	existing, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", errUserNotFound
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	token, err := generateRandomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	expiresAt := time.Now().Add(s.resetTokenTTL)
	if err := s.users.SetResetToken(ctx, existing.ID, hashResetToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, existing.Email, token); err != nil {
		if clearErr := s.users.ClearResetToken(ctx, existing.ID); clearErr != nil {
			s.logger.Error("failed to roll back reset token after send failure",
				"user_id", existing.ID, "error", clearErr)
		}
		return "", httputil.NewError(err.Error(), http.StatusInternalServerError)
	}

	return existing.Email, nil
}

// ResetPassword consumes a reset token: the stored hash must match and
// be unexpired, and the confirmation must agree. The token and the new
// password are written in one update, so a token can never be replayed.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirmPassword string) (*user.User, error) {
	existing, err := s.users.GetByResetTokenHash(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errResetTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user by reset token: %w", err)
	}

	if password != confirmPassword {
		return nil, errPasswordMismatch
	}
	if len(password) < 8 {
		return nil, errPasswordTooShort
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.ConsumeResetToken(ctx, existing.ID, passwordHash); err != nil {
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	return existing, nil
}

// GetUser returns the caller's own record.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdatePassword rotates the caller's password after checking the old one.
func (s *Service) UpdatePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword, confirmPassword string) (*user.User, error) {
	existing, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !verifyPassword(existing.PasswordHash, oldPassword) {
		return nil, errOldPasswordMismatch
	}
	if newPassword != confirmPassword {
		return nil, errPasswordMismatch
	}
	if len(newPassword) < 8 {
		return nil, errPasswordTooShort
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, id, passwordHash); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	return existing, nil
}

// UpdateProfile updates name and email. When a non-empty avatar payload
// is supplied the previous remote image is released (best-effort) and
// the replacement uploaded under the same fixed settings; otherwise the
// existing avatar reference is left untouched.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, name, email, avatarPayload string) error {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" {
		return httputil.NewError("Please enter name and email", http.StatusBadRequest)
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	var newAvatar *user.Avatar
	if strings.TrimSpace(avatarPayload) != "" {
		existing, err := s.users.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		if existing.Avatar != nil {
			// Release the replaced image first; deletion and upload are
			// not transactional.
			if err := s.avatars.Delete(ctx, existing.Avatar.PublicID); err != nil {
				s.logger.Warn("failed to delete previous avatar",
					"public_id", existing.Avatar.PublicID, "error", err)
			}
		}

		asset, err := s.avatars.Upload(ctx, avatarPayload)
		if err != nil {
			return httputil.NewError(err.Error(), http.StatusInternalServerError)
		}

		newAvatar = &user.Avatar{PublicID: asset.PublicID, URL: asset.URL}
	}

	return s.users.UpdateProfile(ctx, id, name, email, newAvatar)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if len(email) > 254 {
		return errInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errInvalidEmailFormat
	}
	return nil
}
