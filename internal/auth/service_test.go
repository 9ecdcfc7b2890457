package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velstore/accounts-api/internal/httputil"
	"github.com/velstore/accounts-api/internal/logging"
	"github.com/velstore/accounts-api/internal/media"
	"github.com/velstore/accounts-api/internal/user"
)

// fakeUserStore is an in-memory user.Store.
type fakeUserStore struct {
	users map[uuid.UUID]*user.User

	createErr error

	clearResetTokenCalls int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uuid.UUID]*user.User{}}
}

func (s *fakeUserStore) Create(ctx context.Context, name, email, passwordHash string, avatar user.Avatar) (*user.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	for _, u := range s.users {
		if u.Email == email {
			return nil, &httputil.DuplicateKeyError{Field: "email"}
		}
	}
	u := &user.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         user.RoleUser,
		Avatar:       &user.Avatar{PublicID: avatar.PublicID, URL: avatar.URL},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByResetTokenHash(ctx context.Context, tokenHash string) (*user.User, error) {
	for _, u := range s.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(time.Now()) {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *fakeUserStore) List(ctx context.Context) ([]user.User, error) {
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *fakeUserStore) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string, avatar *user.Avatar) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Name = name
	u.Email = email
	if avatar != nil {
		u.Avatar = avatar
	}
	return nil
}

func (s *fakeUserStore) UpdateRole(ctx context.Context, id uuid.UUID, name, email, role string) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Name = name
	u.Email = email
	u.Role = role
	return nil
}

func (s *fakeUserStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *fakeUserStore) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (s *fakeUserStore) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	s.clearResetTokenCalls++
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (s *fakeUserStore) ConsumeResetToken(ctx context.Context, id uuid.UUID, passwordHash string) error {
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// fakeMediaStore records uploads and deletions.
type fakeMediaStore struct {
	uploadErr error

	uploads []string
	deletes []string
}

func (s *fakeMediaStore) Upload(ctx context.Context, payload string) (*media.Asset, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.uploads = append(s.uploads, payload)
	id := fmt.Sprintf("avatars/upload-%d", len(s.uploads))
	return &media.Asset{PublicID: id, URL: "https://cdn.example.com/" + id}, nil
}

func (s *fakeMediaStore) Delete(ctx context.Context, publicID string) error {
	s.deletes = append(s.deletes, publicID)
	return nil
}

// fakeMailer records sent mail.
type fakeMailer struct {
	sendErr error

	recipients []string
	tokens     []string
}

func (m *fakeMailer) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.recipients = append(m.recipients, toEmail)
	m.tokens = append(m.tokens, token)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUserStore, *fakeMediaStore, *fakeMailer) {
	t.Helper()
	users := newFakeUserStore()
	avatars := &fakeMediaStore{}
	mailer := &fakeMailer{}
	svc := NewService(users, avatars, mailer, logging.NewLogger(true), 15*time.Minute)
	return svc, users, avatars, mailer
}

func seedUser(t *testing.T, users *fakeUserStore, email, password string) *user.User {
	t.Helper()
	hash, err := hashPassword(password)
	require.NoError(t, err)
	u, err := users.Create(context.Background(), "Jules Verne", email, hash, user.Avatar{
		PublicID: "avatars/seed",
		URL:      "https://cdn.example.com/avatars/seed",
	})
	require.NoError(t, err)
	return u
}

func assertAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var appErr *httputil.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func TestRegister_Success(t *testing.T) {
	svc, _, avatars, _ := newTestService(t)

	u, err := svc.Register(context.Background(), " Jules Verne ", "Jules@Example.com", "correct-horse", "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)

	assert.Equal(t, "Jules Verne", u.Name)
	assert.Equal(t, "jules@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, "avatars/upload-1", u.Avatar.PublicID)

	assert.True(t, verifyPassword(u.PasswordHash, "correct-horse"))
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
	assert.Len(t, avatars.uploads, 1)
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "", "jules@example.com", "correct-horse", "payload")
	assertAppError(t, err, http.StatusBadRequest, "Please enter name, email and password")
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "Jules", "not-an-email", "correct-horse", "payload")
	assertAppError(t, err, http.StatusBadRequest, "Please enter a valid email")
}

func TestRegister_ShortPassword(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "Jules", "jules@example.com", "short", "payload")
	assertAppError(t, err, http.StatusBadRequest, "Password must be at least 8 characters")
}

func TestRegister_MissingAvatar(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "Jules", "jules@example.com", "correct-horse", "  ")
	assertAppError(t, err, http.StatusBadRequest, "Please provide an avatar image")
}

func TestRegister_UploadFailureAborts(t *testing.T) {
	svc, users, avatars, _ := newTestService(t)
	avatars.uploadErr = errors.New("bucket unavailable")

	_, err := svc.Register(context.Background(), "Jules", "jules@example.com", "correct-horse", "payload")
	require.Error(t, err)

	status, _ := httputil.Normalize(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Empty(t, users.users)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.Register(context.Background(), "Jules", "jules@example.com", "correct-horse", "payload")

	status, message := httputil.Normalize(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Duplicate email Entered", message)
}

func TestRegister_CreateFailureReleasesUploadedAvatar(t *testing.T) {
	svc, users, avatars, _ := newTestService(t)
	users.createErr = errors.New("pq: connection refused")

	_, err := svc.Register(context.Background(), "Jules", "jules@example.com", "correct-horse", "payload")
	require.Error(t, err)

	require.Len(t, avatars.deletes, 1)
	assert.Equal(t, "avatars/upload-1", avatars.deletes[0])
}

func TestLogin_Success(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	u, err := svc.Login(context.Background(), "Jules@Example.COM", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)
}

func TestLogin_MissingCredentials(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "jules@example.com", "")
	assertAppError(t, err, http.StatusBadRequest, "Please enter email and password")
}

// Unknown email and wrong password must be indistinguishable to the caller.
func TestLogin_UnknownEmailAndWrongPasswordMatch(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seedUser(t, users, "jules@example.com", "correct-horse")

	_, unknownErr := svc.Login(context.Background(), "nobody@example.com", "correct-horse")
	_, wrongErr := svc.Login(context.Background(), "jules@example.com", "wrong-password")

	assertAppError(t, unknownErr, http.StatusUnauthorized, "Invalid details")
	assertAppError(t, wrongErr, http.StatusUnauthorized, "Invalid details")
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	assertAppError(t, err, http.StatusNotFound, "User not found")
}

func TestForgotPassword_StoresHashAndMailsToken(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	recipient, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jules@example.com", recipient)

	require.Len(t, mailer.tokens, 1)
	token := mailer.tokens[0]

	stored := users.users[seeded.ID]
	require.NotNil(t, stored.ResetTokenHash)
	// Only the hash is persisted; the mailed token must map onto it.
	assert.NotEqual(t, token, *stored.ResetTokenHash)
	assert.Equal(t, hashResetToken(token), *stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiresAt)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *stored.ResetTokenExpiresAt, 5*time.Second)
}

func TestForgotPassword_SendFailureRollsBack(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")
	mailer.sendErr = errors.New("smtp: connection refused")

	_, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.Error(t, err)

	status, _ := httputil.Normalize(err)
	assert.Equal(t, http.StatusInternalServerError, status)

	stored := users.users[seeded.ID]
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)
	assert.Equal(t, 1, users.clearResetTokenCalls)
}

func TestResetPassword_Success(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.NoError(t, err)
	token := mailer.tokens[0]

	u, err := svc.ResetPassword(context.Background(), token, "new-password", "new-password")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)

	stored := users.users[seeded.ID]
	assert.True(t, verifyPassword(stored.PasswordHash, "new-password"))
	assert.Nil(t, stored.ResetTokenHash)
}

func TestResetPassword_TokenCannotBeReplayed(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.NoError(t, err)
	token := mailer.tokens[0]

	_, err = svc.ResetPassword(context.Background(), token, "new-password", "new-password")
	require.NoError(t, err)

	_, err = svc.ResetPassword(context.Background(), token, "another-password", "another-password")
	assertAppError(t, err, http.StatusBadRequest, "Reset Password Token is invalid or has been expired")
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	users.users[seeded.ID].ResetTokenExpiresAt = &past

	_, err = svc.ResetPassword(context.Background(), mailer.tokens[0], "new-password", "new-password")
	assertAppError(t, err, http.StatusBadRequest, "Reset Password Token is invalid or has been expired")
}

func TestResetPassword_ConfirmationMismatch(t *testing.T) {
	svc, users, _, mailer := newTestService(t)
	seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.ForgotPassword(context.Background(), "jules@example.com")
	require.NoError(t, err)

	_, err = svc.ResetPassword(context.Background(), mailer.tokens[0], "new-password", "different")
	assertAppError(t, err, http.StatusBadRequest, "Password does not match")
}

func TestResetPassword_UnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ResetPassword(context.Background(), "made-up-token", "new-password", "new-password")
	assertAppError(t, err, http.StatusBadRequest, "Reset Password Token is invalid or has been expired")
}

func TestUpdatePassword_Success(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.UpdatePassword(context.Background(), seeded.ID, "correct-horse", "new-password", "new-password")
	require.NoError(t, err)

	assert.True(t, verifyPassword(users.users[seeded.ID].PasswordHash, "new-password"))
}

func TestUpdatePassword_WrongOldPassword(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.UpdatePassword(context.Background(), seeded.ID, "wrong", "new-password", "new-password")
	assertAppError(t, err, http.StatusBadRequest, "Old password is incorrect")
}

func TestUpdatePassword_ConfirmationMismatch(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	_, err := svc.UpdatePassword(context.Background(), seeded.ID, "correct-horse", "new-password", "different")
	assertAppError(t, err, http.StatusBadRequest, "Password does not match")
}

func TestUpdateProfile_WithoutAvatarKeepsExisting(t *testing.T) {
	svc, users, avatars, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	err := svc.UpdateProfile(context.Background(), seeded.ID, "Jules V.", "verne@example.com", "")
	require.NoError(t, err)

	stored := users.users[seeded.ID]
	assert.Equal(t, "Jules V.", stored.Name)
	assert.Equal(t, "verne@example.com", stored.Email)
	require.NotNil(t, stored.Avatar)
	assert.Equal(t, "avatars/seed", stored.Avatar.PublicID)
	assert.Empty(t, avatars.uploads)
	assert.Empty(t, avatars.deletes)
}

func TestUpdateProfile_WithAvatarReplacesImage(t *testing.T) {
	svc, users, avatars, _ := newTestService(t)
	seeded := seedUser(t, users, "jules@example.com", "correct-horse")

	err := svc.UpdateProfile(context.Background(), seeded.ID, "Jules V.", "verne@example.com", "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)

	require.Len(t, avatars.deletes, 1)
	assert.Equal(t, "avatars/seed", avatars.deletes[0])

	stored := users.users[seeded.ID]
	require.NotNil(t, stored.Avatar)
	assert.Equal(t, "avatars/upload-1", stored.Avatar.PublicID)
}
