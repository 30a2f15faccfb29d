// Package auth содержит логику регистрации, входа и управления токенами.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/jwt"
	"github.com/magabrotheeeer/vortextv/internal/lib/password"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
	"github.com/magabrotheeeer/vortextv/internal/services/throttle"
	"github.com/magabrotheeeer/vortextv/internal/services/token"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

const resetTokenBytes = 32

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrUserInactive       = errors.New("user not found or inactive")
	ErrInvalidResetToken  = errors.New("invalid or expired token")
	ErrRevokeForbidden    = errors.New("you can only revoke your own tokens")
)

// Users хранилище учетных записей и токенов сброса пароля.
type Users interface {
	CreateAccount(ctx context.Context, acc models.Account) (int64, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByUsername(ctx context.Context, username string) (*models.Account, error)
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// SaveResetToken заменяет прежний токен сброса пользователя.
	SaveResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ResetTokenOwner(ctx context.Context, tokenHash string, now time.Time) (int64, error)
	// ResetPassword меняет хеш, снимает блокировку входа и удаляет токен сброса.
	ResetPassword(ctx context.Context, userID int64, hash string, at time.Time, ip string) error
}

// Tokens выпуск и проверка токенов.
type Tokens interface {
	IssuePair(ctx context.Context, accountID int64, role models.Role, meta models.RequestMeta) (*token.Pair, error)
	Validate(ctx context.Context, signed string, class jwt.Class, meta models.RequestMeta) (*token.Identity, error)
	Inspect(signed string) (*jwt.Claims, error)
	Revoke(ctx context.Context, signed string) (*jwt.Claims, error)
}

// Throttle учет неудачных входов.
type Throttle interface {
	Check(ctx context.Context, accountID int64) error
	RecordFailure(ctx context.Context, accountID int64) (throttle.Attempts, error)
	RecordSuccess(ctx context.Context, accountID int64) error
	RemainingAttempts(a throttle.Attempts) int
}

// Auditor журнал аудита.
type Auditor interface {
	Record(ctx context.Context, userID *int64, action, details string, meta models.RequestMeta)
	RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta)
}

// Publisher отправка писем через брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// UserInfo краткие данные пользователя в ответе на вход.
type UserInfo struct {
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}

// Session результат входа, регистрации или обновления токенов.
type Session struct {
	token.Pair
	User UserInfo `json:"user"`
}

// Registration данные регистрации.
type Registration struct {
	Username string
	Email    string
	Password string
}

// Options параметры сброса пароля.
type Options struct {
	FrontendURL string
	ResetTTL    time.Duration
}

// Service сервис аутентификации.
type Service struct {
	log      *slog.Logger
	users    Users
	tokens   Tokens
	throttle Throttle
	audit    Auditor
	pub      Publisher
	opts     Options
	now      func() time.Time
}

// New создает сервис. pub может быть nil, тогда письма не отправляются.
func New(log *slog.Logger, users Users, tokens Tokens, th Throttle, audit Auditor, pub Publisher, opts Options) *Service {
	if opts.ResetTTL == 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{
		log:      log,
		users:    users,
		tokens:   tokens,
		throttle: th,
		audit:    audit,
		pub:      pub,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register создает учетную запись с ролью user и сразу выдает токены.
func (s *Service) Register(ctx context.Context, in Registration, meta models.RequestMeta) (*Session, error) {
	const op = "auth.Register"
	if err := s.ensureFree(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acc := models.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	acc.ID, err = s.users.CreateAccount(ctx, acc)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// параллельная регистрация успела занять имя или email
		if storage.ViolatedConstraint(err) == storage.UniqueEmail {
			return nil, ErrEmailTaken
		}
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.session(ctx, &acc, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, acc.ID, models.ActionRegister, "User registered", meta)
	return session, nil
}

// Login проверяет блокировку, затем пароль. Заблокированная учетная запись
// отклоняется без проверки пароля, и попытка не засчитывается.
func (s *Service) Login(ctx context.Context, username, pass string, meta models.RequestMeta) (*Session, error) {
	const op = "auth.Login"
	acc, err := s.users.AccountByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordLogin("unknown_user")
		s.audit.Record(ctx, nil, models.ActionFailedLogin, fmt.Sprintf("Unknown username %q", username), meta)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !acc.IsActive {
		metrics.RecordLogin("inactive")
		s.audit.RecordFor(ctx, acc.ID, models.ActionFailedLogin, "Login to inactive account", meta)
		return nil, ErrInvalidCredentials
	}

	if err := s.throttle.Check(ctx, acc.ID); err != nil {
		if locked, ok := throttle.IsLocked(err); ok {
			metrics.RecordLogin("locked")
			s.audit.RecordFor(ctx, acc.ID, models.ActionLockedAccountAccess,
				fmt.Sprintf("Login attempt while locked until %s", locked.Until.Format(time.RFC3339)), meta)
			return nil, locked
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !password.Verify(pass, acc.PasswordHash) {
		attempts, err := s.throttle.RecordFailure(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		metrics.RecordLogin("failure")
		s.audit.RecordFor(ctx, acc.ID, models.ActionFailedLogin,
			fmt.Sprintf("Failed login attempt %d, %d left before lockout",
				attempts.Failed, s.throttle.RemainingAttempts(attempts)), meta)
		return nil, ErrInvalidCredentials
	}

	if err := s.throttle.RecordSuccess(ctx, acc.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	session, err := s.session(ctx, acc, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordLogin("success")
	s.audit.RecordFor(ctx, acc.ID, models.ActionLogin, "User logged in", meta)
	return session, nil
}

// Refresh выдает новую пару по refresh-токену. Роль и активность
// перечитываются из хранилища. Предъявленный токен не отзывается.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta models.RequestMeta) (*Session, error) {
	const op = "auth.Refresh"
	id, err := s.tokens.Validate(ctx, refreshToken, jwt.ClassRefresh, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acc, err := s.users.AccountByID(ctx, id.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserInactive
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !acc.IsActive {
		return nil, ErrUserInactive
	}

	session, err := s.session(ctx, acc, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, acc.ID, models.ActionTokenRefresh, "Access token refreshed", meta)
	return session, nil
}

// Logout отзывает текущий access-токен.
func (s *Service) Logout(ctx context.Context, caller models.Caller, accessToken string) error {
	const op = "auth.Logout"
	if _, err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.TokenRevocationsTotal.Inc()
	s.audit.RecordFor(ctx, caller.ID, models.ActionLogout, "User logged out", caller.Meta)
	return nil
}

// RevokeToken отзывает произвольный токен. Чужие токены отзывают только администраторы.
func (s *Service) RevokeToken(ctx context.Context, caller models.Caller, signed string) error {
	const op = "auth.RevokeToken"
	claims, err := s.tokens.Inspect(signed)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, token.ErrAlreadyInvalid, err)
	}
	owner, err := claims.AccountID()
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, token.ErrAlreadyInvalid, err)
	}
	if owner != caller.ID && !caller.Role.AtLeast(models.RoleAdmin) {
		return ErrRevokeForbidden
	}
	if _, err := s.tokens.Revoke(ctx, signed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.TokenRevocationsTotal.Inc()
	s.audit.RecordFor(ctx, caller.ID, models.ActionTokenRevoke,
		fmt.Sprintf("Revoked token %s of user %d", claims.ID, owner), caller.Meta)
	return nil
}

// ForgotPassword отправляет ссылку на сброс пароля, если почта известна.
// Ответ клиенту одинаков в обоих случаях, поэтому ошибки только логируются.
func (s *Service) ForgotPassword(ctx context.Context, email string, meta models.RequestMeta) {
	const op = "auth.ForgotPassword"
	log := s.log.With(slog.String("op", op))

	acc, err := s.users.AccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		s.audit.Record(ctx, nil, models.ActionForgotPassword, "Reset requested for unknown email", meta)
		return
	}
	if err != nil {
		log.Error("failed to look up account", sl.Err(err))
		return
	}

	raw, err := newResetToken()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return
	}
	if err := s.users.SaveResetToken(ctx, acc.ID, hashResetToken(raw), s.now().Add(s.opts.ResetTTL)); err != nil {
		log.Error("failed to save reset token", sl.Err(err))
		return
	}
	s.audit.RecordFor(ctx, acc.ID, models.ActionForgotPassword, "Password reset requested", meta)

	if s.pub == nil {
		log.Warn("mail publisher is not configured, reset link not sent", slog.Int64("user_id", acc.ID))
		return
	}
	mail := rabbitmq.PasswordResetMail{
		Email:     acc.Email,
		Username:  acc.Username,
		ResetLink: s.resetLink(raw),
		ExpiresIn: s.opts.ResetTTL.String(),
	}
	if err := s.pub.Publish(ctx, rabbitmq.RoutingPasswordReset, mail); err != nil {
		log.Error("failed to publish reset mail", sl.Err(err))
	}
}

// ResetPassword устанавливает новый пароль по токену из письма.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string, meta models.RequestMeta) error {
	const op = "auth.ResetPassword"
	now := s.now()
	userID, err := s.users.ResetTokenOwner(ctx, hashResetToken(rawToken), now)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.ResetPassword(ctx, userID, hash, now, meta.IP); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, userID, models.ActionResetPassword, "Password reset via email token", meta)
	return nil
}

func (s *Service) session(ctx context.Context, acc *models.Account, meta models.RequestMeta) (*Session, error) {
	pair, err := s.tokens.IssuePair(ctx, acc.ID, acc.Role, meta)
	if err != nil {
		return nil, err
	}
	return &Session{
		Pair: *pair,
		User: UserInfo{
			UserID:   acc.ID,
			Username: acc.Username,
			Email:    acc.Email,
			Role:     acc.Role,
		},
	}, nil
}

func (s *Service) ensureFree(ctx context.Context, username, email string) error {
	const op = "auth.ensureFree"
	_, err := s.users.AccountByUsername(ctx, username)
	if err == nil {
		return ErrUsernameTaken
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.users.AccountByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) resetLink(raw string) string {
	return s.opts.FrontendURL + "/reset-password?token=" + url.QueryEscape(raw)
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// в базе хранится только sha256 от токена
func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
