// Package token выпускает, проверяет и отзывает токены доступа.
//
// Токен хранится только у клиента. На сервере живет лишь список отозванных jti,
// и запись в нем держится до естественного истечения токена.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/jwt"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

var (
	ErrExpired = jwt.ErrExpired
	ErrInvalid = jwt.ErrInvalid
	// ErrRevoked токен отозван до истечения срока.
	ErrRevoked = errors.New("token revoked")
	// ErrIPMismatch токен предъявлен с другого IP, чем был выдан.
	ErrIPMismatch = fmt.Errorf("%w: token was issued for a different IP address", jwt.ErrInvalid)
	// ErrWrongClass предъявлен токен другого класса.
	ErrWrongClass = fmt.Errorf("%w: unexpected token class", jwt.ErrInvalid)
	// ErrAlreadyInvalid отзыв токена, который уже недействителен.
	ErrAlreadyInvalid = errors.New("token already invalid")
)

// RevocationStore хранилище отозванных jti.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Pair пара токенов, выдаваемая при входе и обновлении.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Identity проверенный владелец токена.
type Identity struct {
	AccountID int64
	Role      models.Role
	Class     jwt.Class
	Claims    *jwt.Claims
}

// Service сервис токенов.
type Service struct {
	maker     jwt.Maker
	revoked   RevocationStore
	accessTTL time.Duration
	bindIP    bool
}

// New создает сервис. При bindIP токены привязываются к IP клиента.
func New(maker jwt.Maker, revoked RevocationStore, accessTTL time.Duration, bindIP bool) *Service {
	return &Service{
		maker:     maker,
		revoked:   revoked,
		accessTTL: accessTTL,
		bindIP:    bindIP,
	}
}

// Issue выпускает токен заданного класса.
func (s *Service) Issue(ctx context.Context, accountID int64, role models.Role, class jwt.Class, meta models.RequestMeta) (string, error) {
	const op = "token.Issue"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	binding := jwt.Binding{UserAgent: meta.UserAgent}
	if s.bindIP {
		binding.IP = meta.IP
	}
	signed, _, err := s.maker.GenerateToken(accountID, string(role), class, binding)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// IssuePair выпускает access и refresh токены.
func (s *Service) IssuePair(ctx context.Context, accountID int64, role models.Role, meta models.RequestMeta) (*Pair, error) {
	access, err := s.Issue(ctx, accountID, role, jwt.ClassAccess, meta)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issue(ctx, accountID, role, jwt.ClassRefresh, meta)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Validate проверяет подпись, срок, класс, привязку к IP и отзыв.
func (s *Service) Validate(ctx context.Context, signed string, class jwt.Class, meta models.RequestMeta) (*Identity, error) {
	const op = "token.Validate"

	claims, err := s.maker.ParseToken(signed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if claims.Class != class {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongClass)
	}
	if claims.IP != "" && claims.IP != meta.IP {
		return nil, fmt.Errorf("%s: %w", op, ErrIPMismatch)
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return nil, fmt.Errorf("%s: %w", op, ErrRevoked)
	}

	return &Identity{
		AccountID: id,
		Role:      models.Role(claims.Role),
		Class:     claims.Class,
		Claims:    claims,
	}, nil
}

// Inspect разбирает токен без проверки отзыва и привязки.
func (s *Service) Inspect(signed string) (*jwt.Claims, error) {
	return s.maker.ParseToken(signed)
}

// Revoke вносит jti токена в список отозванных до момента его истечения.
// Для истекшего, поврежденного или уже отозванного токена возвращает ErrAlreadyInvalid.
func (s *Service) Revoke(ctx context.Context, signed string) (*jwt.Claims, error) {
	const op = "token.Revoke"

	claims, err := s.maker.ParseToken(signed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrAlreadyInvalid, err)
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return claims, fmt.Errorf("%s: %w", op, ErrAlreadyInvalid)
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}
