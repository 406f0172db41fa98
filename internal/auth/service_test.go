package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/users"
)

type fakeUsers struct {
	byUsername map[string]domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byUsername: map[string]domain.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u domain.User) error {
	if _, exists := f.byUsername[u.Username]; exists {
		return users.ErrUsernameTaken
	}
	f.byUsername[u.Username] = u
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (domain.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return domain.User{}, users.ErrNotFound
	}
	return u, nil
}

type fakeSessions struct {
	created []domain.Session
}

func (f *fakeSessions) Create(_ context.Context, s domain.Session) error {
	f.created = append(f.created, s)
	return nil
}

func TestService_RegisterThenLogin(t *testing.T) {
	u := newFakeUsers()
	s := &fakeSessions{}
	svc := New(u, s, Config{SessionTTL: time.Hour})

	reg, err := svc.Register(context.Background(), "alice", "correct horse battery", "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, reg.AccessToken)
	require.Len(t, s.created, 1)

	login, err := svc.Login(context.Background(), "alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, login.UserID)
	assert.NotEqual(t, reg.AccessToken, login.AccessToken)
	assert.Len(t, s.created, 2)
}

func TestService_LoginWrongPasswordFails(t *testing.T) {
	u := newFakeUsers()
	s := &fakeSessions{}
	svc := New(u, s, Config{SessionTTL: time.Hour})

	_, err := svc.Register(context.Background(), "bob", "supersecretpw", "org-1")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "bob", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_LoginUnknownUserFails(t *testing.T) {
	svc := New(newFakeUsers(), &fakeSessions{}, Config{SessionTTL: time.Hour})

	_, err := svc.Login(context.Background(), "ghost", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword_RejectsShortPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
