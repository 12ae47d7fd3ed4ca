package account

import (
	"context"
	"testing"
	"time"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository/memory"
	sessionmem "github.com/chatterbox/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(memory.New(), sessionmem.New(), time.Hour)
	s.SetBcryptCost(bcrypt.MinCost)
	return s
}

func TestRegisterLoginLogout(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	sess, err := s.Register(ctx, "  alice ", "pw", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)

	p, err := s.Authenticate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, p.UserID)

	u, err := s.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", u.PasswordHash)
	assert.Equal(t, model.DefaultAvatarBgColor, u.AvatarBgColor)
	assert.Equal(t, model.ThemeSystem, u.Theme)

	second, err := s.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, second.ID)

	require.NoError(t, s.Logout(ctx, sess.ID))
	_, err = s.Authenticate(ctx, sess.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	_, err = s.Authenticate(ctx, second.ID)
	assert.NoError(t, err, "other sessions stay valid")
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.Register(ctx, "bob", "pw", "pw")
	require.NoError(t, err)

	tests := []struct {
		name               string
		user, pass, repeat string
		code               apperror.Code
	}{
		{"empty username", " ", "pw", "pw", apperror.CodeEmptyInput},
		{"empty password", "carol", "", "", apperror.CodeEmptyInput},
		{"mismatch", "carol", "pw", "px", apperror.CodeInvalidArgument},
		{"space in name", "ca rol", "pw", "pw", apperror.CodeInvalidArgument},
		{"taken", "bob", "pw", "pw", apperror.CodeDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.user, tt.pass, tt.repeat)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.Register(ctx, "alice", "pw", "pw")
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "pw")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = s.Login(ctx, "", "pw")
	assert.ErrorIs(t, err, apperror.ErrEmptyCredentials)
	_, err = s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	sess, err := s.Register(ctx, "alice", "pw", "pw")
	require.NoError(t, err)
	p := sess.Principal()

	u, err := s.UpdateProfile(ctx, p, ProfileUpdate{StatusMessage: " busy ", AvatarBgColor: "#aabbcc", Theme: model.ThemeDark})
	require.NoError(t, err)
	assert.Equal(t, "busy", u.StatusMessage)
	assert.Equal(t, "#AABBCC", u.AvatarBgColor)
	assert.Equal(t, model.DefaultAvatarTextColor, u.AvatarTextColor)
	assert.Equal(t, model.ThemeDark, u.Theme)

	got, err := s.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "busy", got.StatusMessage)

	long := make([]rune, model.MaxStatusMessageLen+1)
	for i := range long {
		long[i] = 'ü'
	}
	_, err = s.UpdateProfile(ctx, p, ProfileUpdate{StatusMessage: string(long)})
	assert.ErrorIs(t, err, apperror.ErrStatusTooLong)
	_, err = s.UpdateProfile(ctx, p, ProfileUpdate{AvatarTextColor: "red"})
	assert.ErrorIs(t, err, apperror.ErrInvalidColor)
	_, err = s.UpdateProfile(ctx, p, ProfileUpdate{Theme: "neon"})
	assert.Equal(t, apperror.CodeInvalidArgument, apperror.CodeOf(err))
	_, err = s.UpdateProfile(ctx, model.Principal{UserID: "ghost"}, ProfileUpdate{})
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)

	_, err = s.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}
