package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

type memoryRepo struct {
	users    map[string]*User
	sessions map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]*User), sessions: make(map[string]int64)}
}

func (r *memoryRepo) addUser(t *testing.T, email, password, role string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &User{
		ID:           int64(len(r.users) + 1),
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     active,
	}
	r.users[email] = u
	return u
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if u, ok := r.users[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(t, "manager@example.com", "correct-horse", RoleManager, true)
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "manager@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, RoleManager, user.Role)

	_, err = svc.Authenticate(ctx, "manager@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	repo := newMemoryRepo()
	repo.addUser(t, "old@example.com", "correct-horse", RoleViewer, false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "old@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCanWrite(t *testing.T) {
	require.True(t, CanWrite(RoleAdmin))
	require.True(t, CanWrite(RoleManager))
	require.False(t, CanWrite(RoleViewer))
	require.False(t, CanWrite(""))
}
