// Package account handles registration, password login, sessions and user profiles.
package account

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/metrics"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
	"github.com/chatterbox/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameLen = 64

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type Service struct {
	users      repository.Queries
	sessions   storage.SessionStore
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewService(users repository.Queries, sessions storage.SessionStore, ttl time.Duration) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetBcryptCost lowers the hashing cost for tests.
func (s *Service) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

func (s *Service) newSession(ctx context.Context, u *model.User) (*model.Session, error) {
	now := s.now()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, apperror.Store(err)
	}
	return sess, nil
}

// Register creates a user and logs them in.
func (s *Service) Register(ctx context.Context, username, password, confirm string) (sess *model.Session, err error) {
	defer func() { observe("Register", err) }()
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.ErrEmptyCredentials
	}
	if utf8.RuneCountInString(username) > maxUsernameLen || strings.ContainsAny(username, " \t\n@") {
		return nil, apperror.New(apperror.CodeInvalidArgument, "username must be at most 64 characters without spaces or @")
	}
	if password != confirm {
		return nil, apperror.ErrPasswordMismatch
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInvalidArgument, "password cannot be used", err)
	}
	now := s.now()
	u := &model.User{
		ID:              uuid.NewString(),
		Username:        username,
		PasswordHash:    string(hash),
		AvatarBgColor:   model.DefaultAvatarBgColor,
		AvatarTextColor: model.DefaultAvatarTextColor,
		Theme:           model.ThemeSystem,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.ErrUsernameTaken
		}
		return nil, apperror.Store(err)
	}
	logger.Infof("account: registered user=%s", u.ID)
	return s.newSession(ctx, u)
}

// Login checks the password and opens a new session.
func (s *Service) Login(ctx context.Context, username, password string) (sess *model.Session, err error) {
	defer func() { observe("Login", err) }()
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.ErrEmptyCredentials
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperror.ErrInvalidCredentials
	}
	return s.newSession(ctx, u)
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return apperror.Store(err)
	}
	return nil
}

// Authenticate resolves a session id to the caller.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (model.Principal, error) {
	if sessionID == "" {
		return model.Principal{}, apperror.ErrUnauthenticated
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return model.Principal{}, apperror.ErrUnauthenticated
	}
	if err != nil {
		return model.Principal{}, apperror.Store(err)
	}
	return sess.Principal(), nil
}

func (s *Service) Profile(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	return u, nil
}

// ProfileUpdate carries the editable fields; empty colors and theme keep the current value.
type ProfileUpdate struct {
	StatusMessage   string
	AvatarBgColor   string
	AvatarTextColor string
	Theme           model.Theme
}

func (s *Service) UpdateProfile(ctx context.Context, p model.Principal, in ProfileUpdate) (u *model.User, err error) {
	defer func() { observe("UpdateProfile", err) }()
	in.StatusMessage = strings.TrimSpace(in.StatusMessage)
	if utf8.RuneCountInString(in.StatusMessage) > model.MaxStatusMessageLen {
		return nil, apperror.ErrStatusTooLong
	}
	for _, c := range []string{in.AvatarBgColor, in.AvatarTextColor} {
		if c != "" && !colorRe.MatchString(c) {
			return nil, apperror.ErrInvalidColor
		}
	}
	if in.Theme != "" && !in.Theme.Valid() {
		return nil, apperror.New(apperror.CodeInvalidArgument, "theme must be light, dark or system")
	}

	u, err = s.users.GetUserByID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	u.StatusMessage = in.StatusMessage
	if in.AvatarBgColor != "" {
		u.AvatarBgColor = strings.ToUpper(in.AvatarBgColor)
	}
	if in.AvatarTextColor != "" {
		u.AvatarTextColor = strings.ToUpper(in.AvatarTextColor)
	}
	if in.Theme != "" {
		u.Theme = in.Theme
	}
	u.UpdatedAt = s.now()
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Store(err)
	}
	return u, nil
}

func observe(op string, err error) {
	metrics.ObserveOp("account."+op, err)
	if err != nil && apperror.CodeOf(err) == apperror.CodeStore {
		logger.Errorf("account.%s: %v", op, err)
	}
}
