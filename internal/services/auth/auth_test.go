package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/lib/jwt"
	"github.com/magabrotheeeer/vortextv/internal/lib/password"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
	"github.com/magabrotheeeer/vortextv/internal/services/auth"
	"github.com/magabrotheeeer/vortextv/internal/services/throttle"
	"github.com/magabrotheeeer/vortextv/internal/services/token"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type resetEntry struct {
	userID    int64
	expiresAt time.Time
}

// userStore учетные записи, счетчики входа и токены сброса в памяти.
type userStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.Account
	attempts map[int64]throttle.Attempts
	resets   map[string]resetEntry

	// beforeCreate срабатывает перед вставкой, имитируя параллельную регистрацию
	beforeCreate func(s *userStore)
}

func newUserStore() *userStore {
	return &userStore{
		accounts: make(map[int64]*models.Account),
		attempts: make(map[int64]throttle.Attempts),
		resets:   make(map[string]resetEntry),
	}
}

func (s *userStore) CreateAccount(_ context.Context, acc models.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeCreate != nil {
		s.beforeCreate(s)
		s.beforeCreate = nil
	}
	for _, a := range s.accounts {
		if a.Username == acc.Username {
			return 0, &storage.UniqueError{Constraint: storage.UniqueUsername}
		}
		if a.Email == acc.Email {
			return 0, &storage.UniqueError{Constraint: storage.UniqueEmail}
		}
	}
	return s.insert(acc), nil
}

func (s *userStore) insert(acc models.Account) int64 {
	s.nextID++
	acc.ID = s.nextID
	s.accounts[acc.ID] = &acc
	return acc.ID
}

func (s *userStore) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *userStore) find(match func(*models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *userStore) AccountByUsername(_ context.Context, username string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return a.Username == username })
}

func (s *userStore) AccountByEmail(_ context.Context, email string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return a.Email == email })
}

func (s *userStore) SaveResetToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, e := range s.resets {
		if e.userID == userID {
			delete(s.resets, h)
		}
	}
	s.resets[tokenHash] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *userStore) ResetTokenOwner(_ context.Context, tokenHash string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.resets[tokenHash]
	if !ok || !e.expiresAt.After(now) {
		return 0, storage.ErrNotFound
	}
	return e.userID, nil
}

func (s *userStore) ResetPassword(_ context.Context, userID int64, hash string, at time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return storage.ErrNotFound
	}
	a.PasswordHash = hash
	a.PasswordResetAt = &at
	delete(s.attempts, userID)
	for h, e := range s.resets {
		if e.userID == userID {
			delete(s.resets, h)
		}
	}
	return nil
}

func (s *userStore) LoginAttempts(_ context.Context, id int64) (throttle.Attempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id], nil
}

func (s *userStore) SaveLoginAttempts(_ context.Context, id int64, a throttle.Attempts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id] = a
	return nil
}

func (s *userStore) MarkLoginSuccess(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
	if a, ok := s.accounts[id]; ok {
		a.LastLogin = &at
	}
	return nil
}

type auditSpy struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditSpy) Record(_ context.Context, _ *int64, action, _ string, _ models.RequestMeta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *auditSpy) RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta) {
	a.Record(ctx, &userID, action, details, meta)
}

func (a *auditSpy) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, got := range a.actions {
		if got == action {
			n++
		}
	}
	return n
}

type publisherSpy struct {
	keys     []string
	messages []any
	err      error
}

func (p *publisherSpy) Publish(_ context.Context, key string, msg any) error {
	p.keys = append(p.keys, key)
	p.messages = append(p.messages, msg)
	return p.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *auth.Service
	users  *userStore
	tokens *token.Service
	audit  *auditSpy
	pub    *publisherSpy
	clock  *clock
}

var meta = models.RequestMeta{IP: "203.0.113.7", UserAgent: "vortex-test"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Now()}
	users := newUserStore()
	tokens := token.New(jwt.NewJWTMaker("auth-test-secret", time.Hour, 30*24*time.Hour), token.NewMemoryRevocationStore(), time.Hour, true)
	th := throttle.New(users, 5, 15*time.Minute).WithClock(c.Now)
	spy := &auditSpy{}
	pub := &publisherSpy{}
	svc := auth.New(newNoopLogger(), users, tokens, th, spy, pub, auth.Options{FrontendURL: "https://vortex.tv"}).WithClock(c.Now)
	return &fixture{svc: svc, users: users, tokens: tokens, audit: spy, pub: pub, clock: c}
}

func (f *fixture) register(t *testing.T, username, pass string) *auth.Session {
	t.Helper()
	s, err := f.svc.Register(context.Background(), auth.Registration{
		Username: username,
		Email:    username + "@example.com",
		Password: pass,
	}, meta)
	require.NoError(t, err)
	return s
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice", "wonderland1")
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)
	assert.Equal(t, models.RoleUser, reg.User.Role)

	acc, err := f.users.AccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "wonderland1", acc.PasswordHash)
	assert.True(t, password.Verify("wonderland1", acc.PasswordHash))

	s, err := f.svc.Login(ctx, "alice", "wonderland1", meta)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, s.User.UserID)
	assert.Equal(t, "alice@example.com", s.User.Email)

	id, err := f.tokens.Validate(ctx, s.AccessToken, jwt.ClassAccess, meta)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id.AccountID)

	assert.Equal(t, 1, f.audit.count(models.ActionRegister))
	assert.Equal(t, 1, f.audit.count(models.ActionLogin))
}

func TestRegister_Duplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "wonderland1")

	_, err := f.svc.Register(ctx, auth.Registration{Username: "alice", Email: "other@example.com", Password: "password1"}, meta)
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	_, err = f.svc.Register(ctx, auth.Registration{Username: "alice2", Email: "alice@example.com", Password: "password1"}, meta)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestRegister_ConcurrentDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.users.beforeCreate = func(s *userStore) {
		s.insert(models.Account{Username: "bob", Email: "shared@example.com", Role: models.RoleUser, IsActive: true})
	}

	_, err := f.svc.Register(context.Background(),
		auth.Registration{Username: "carol", Email: "shared@example.com", Password: "password1"}, meta)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Equal(t, 0, f.audit.count(models.ActionRegister))
}

func TestRegister_ConcurrentDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.users.beforeCreate = func(s *userStore) {
		s.insert(models.Account{Username: "carol", Email: "first@example.com", Role: models.RoleUser, IsActive: true})
	}

	_, err := f.svc.Register(context.Background(),
		auth.Registration{Username: "carol", Email: "second@example.com", Password: "password1"}, meta)
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestLogin_GenericFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "wonderland1")

	_, err := f.svc.Login(ctx, "nobody", "whatever1", meta)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "alice", "wrong-pass", meta)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	f.users.accounts[1].IsActive = false
	_, err = f.svc.Login(ctx, "alice", "wonderland1", meta)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, 3, f.audit.count(models.ActionFailedLogin))
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "wonderland1")

	for range 5 {
		_, err := f.svc.Login(ctx, "alice", "bad-password", meta)
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	// шестая попытка с верным паролем отклоняется без проверки пароля
	_, err := f.svc.Login(ctx, "alice", "wonderland1", meta)
	locked, ok := throttle.IsLocked(err)
	require.True(t, ok)
	assert.Equal(t, 15, locked.Minutes())
	assert.Equal(t, 1, f.audit.count(models.ActionLockedAccountAccess))

	attempts, _ := f.users.LoginAttempts(ctx, 1)
	assert.Equal(t, 5, attempts.Failed, "locked attempt must not be counted")

	f.clock.Advance(15*time.Minute + time.Second)
	s, err := f.svc.Login(ctx, "alice", "wonderland1", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, s.AccessToken)

	attempts, _ = f.users.LoginAttempts(ctx, 1)
	assert.Zero(t, attempts.Failed)
	assert.Nil(t, attempts.LastFailedAt)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "alice", "wonderland1")

	s, err := f.svc.Refresh(ctx, reg.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, reg.AccessToken, s.AccessToken)
	assert.Equal(t, 1, f.audit.count(models.ActionTokenRefresh))

	// refresh не отзывается при обновлении
	_, err = f.svc.Refresh(ctx, reg.RefreshToken, meta)
	assert.NoError(t, err)

	_, err = f.svc.Refresh(ctx, reg.AccessToken, meta)
	assert.ErrorIs(t, err, token.ErrInvalid)

	_, err = f.svc.Refresh(ctx, reg.RefreshToken, models.RequestMeta{IP: "198.51.100.1", UserAgent: meta.UserAgent})
	assert.ErrorIs(t, err, token.ErrIPMismatch)

	f.users.accounts[1].IsActive = false
	_, err = f.svc.Refresh(ctx, reg.RefreshToken, meta)
	assert.ErrorIs(t, err, auth.ErrUserInactive)
}

func TestRefresh_PicksUpNewRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "alice", "wonderland1")
	f.users.accounts[1].Role = models.RoleAdmin

	s, err := f.svc.Refresh(ctx, reg.RefreshToken, meta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, s.User.Role)

	id, err := f.tokens.Validate(ctx, s.AccessToken, jwt.ClassAccess, meta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, id.Role)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "alice", "wonderland1")
	caller := models.Caller{ID: reg.User.UserID, Role: models.RoleUser, Meta: meta}

	require.NoError(t, f.svc.Logout(ctx, caller, reg.AccessToken))

	_, err := f.tokens.Validate(ctx, reg.AccessToken, jwt.ClassAccess, meta)
	assert.ErrorIs(t, err, token.ErrRevoked)

	err = f.svc.Logout(ctx, caller, reg.AccessToken)
	assert.ErrorIs(t, err, token.ErrAlreadyInvalid)
	assert.Equal(t, 1, f.audit.count(models.ActionLogout))
}

func TestRevokeToken_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "wonderland1")
	bob := f.register(t, "bob", "builder123")

	aliceCaller := models.Caller{ID: alice.User.UserID, Role: models.RoleUser, Meta: meta}
	err := f.svc.RevokeToken(ctx, aliceCaller, bob.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrRevokeForbidden)

	require.NoError(t, f.svc.RevokeToken(ctx, aliceCaller, alice.RefreshToken))
	_, err = f.svc.Refresh(ctx, alice.RefreshToken, meta)
	assert.ErrorIs(t, err, token.ErrRevoked)

	admin := models.Caller{ID: 99, Role: models.RoleAdmin, Meta: meta}
	require.NoError(t, f.svc.RevokeToken(ctx, admin, bob.RefreshToken))

	err = f.svc.RevokeToken(ctx, admin, "garbage")
	assert.ErrorIs(t, err, token.ErrAlreadyInvalid)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "wonderland1")

	for range 5 {
		_, _ = f.svc.Login(ctx, "alice", "bad-password", meta)
	}

	f.svc.ForgotPassword(ctx, "alice@example.com", meta)
	require.Len(t, f.pub.messages, 1)
	assert.Equal(t, rabbitmq.RoutingPasswordReset, f.pub.keys[0])
	mail, ok := f.pub.messages[0].(rabbitmq.PasswordResetMail)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", mail.Email)
	require.True(t, strings.HasPrefix(mail.ResetLink, "https://vortex.tv/reset-password?token="))

	link, err := url.Parse(mail.ResetLink)
	require.NoError(t, err)
	raw := link.Query().Get("token")
	assert.Len(t, raw, 64)

	// в хранилище лежит хеш, а не сам токен
	_, stored := f.users.resets[raw]
	assert.False(t, stored)

	require.NoError(t, f.svc.ResetPassword(ctx, raw, "new-password-1", meta))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, raw, "another-pass", meta), auth.ErrInvalidResetToken)

	// сброс пароля снимает блокировку
	_, err = f.svc.Login(ctx, "alice", "new-password-1", meta)
	require.NoError(t, err)
	assert.Equal(t, 1, f.audit.count(models.ActionResetPassword))
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.svc.ForgotPassword(context.Background(), "ghost@example.com", meta)
	assert.Empty(t, f.pub.messages)
	assert.Equal(t, 1, f.audit.count(models.ActionForgotPassword))
}

func TestForgotPassword_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "wonderland1")
	f.pub.err = errors.New("broker down")

	assert.NotPanics(t, func() {
		f.svc.ForgotPassword(context.Background(), "alice@example.com", meta)
	})
	assert.Len(t, f.pub.messages, 1)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "wonderland1")

	f.svc.ForgotPassword(ctx, "alice@example.com", meta)
	require.Len(t, f.pub.messages, 1)
	link, err := url.Parse(f.pub.messages[0].(rabbitmq.PasswordResetMail).ResetLink)
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Minute)
	err = f.svc.ResetPassword(ctx, link.Query().Get("token"), "new-password-1", meta)
	assert.ErrorIs(t, err, auth.ErrInvalidResetToken)
}
