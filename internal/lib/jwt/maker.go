// Package jwt выпускает и разбирает подписанные HS256 токены доступа и обновления.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired срок действия токена истек.
	ErrExpired = errors.New("token expired")
	// ErrInvalid подпись, формат или содержимое токена некорректны.
	ErrInvalid = errors.New("invalid token")
)

// Maker выпускает и разбирает токены.
type Maker interface {
	GenerateToken(accountID int64, role string, class Class, binding Binding) (string, *Claims, error)
	ParseToken(tokenStr string) (*Claims, error)
}

// MakerImpl реализация Maker на общем секрете.
type MakerImpl struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTMaker создает Maker с временем жизни для access и refresh токенов.
func NewJWTMaker(secretKey string, accessTTL, refreshTTL time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock подменяет источник времени.
func (j *MakerImpl) WithClock(now func() time.Time) *MakerImpl {
	j.now = now
	return j
}

// TTL время жизни токена данного класса.
func (j *MakerImpl) TTL(class Class) time.Duration {
	if class == ClassRefresh {
		return j.refreshTTL
	}
	return j.accessTTL
}

// GenerateToken подписывает токен и возвращает его вместе с claims.
func (j *MakerImpl) GenerateToken(accountID int64, role string, class Class, binding Binding) (string, *Claims, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	claims := &Claims{
		Role:      role,
		Class:     class,
		IP:        binding.IP,
		UserAgent: binding.UserAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL(class))),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return signed, claims, nil
}

// ParseToken проверяет подпись и срок действия токена.
// Ошибки сводятся к ErrExpired или ErrInvalid.
func (j *MakerImpl) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalid, err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}
	if claims.Class != ClassAccess && claims.Class != ClassRefresh {
		return nil, fmt.Errorf("%s: %w: unknown class %q", op, ErrInvalid, claims.Class)
	}
	return claims, nil
}
