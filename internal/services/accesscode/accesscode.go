// Package accesscode выпускает, гасит и отзывает коды доступа.
//
// Владелец активной подписки выпускает коды в пределах лимита своего тарифа.
// Код гасится один раз другим пользователем и дает доступ до конца
// родительской подписки.
package accesscode

import (
	"context"
	"errors"
	"fmt"
	"time"

	codegen "github.com/magabrotheeeer/vortextv/internal/lib/accesscode"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// Ошибки проверки кода в порядке проверки.
var (
	ErrNotFound    = errors.New("access code not found")
	ErrAlreadyUsed = errors.New("access code has already been used")
	ErrInactive    = errors.New("access code is no longer active")
	ErrExpired     = errors.New("access code has expired")
)

// Ошибки политики выпуска и погашения.
var (
	ErrNoSubscription      = errors.New("no active subscription found")
	ErrOwnCode             = errors.New("you cannot redeem your own access code")
	ErrAlreadySubscribed   = errors.New("you already have an active subscription")
	ErrAlreadyHasCode      = errors.New("you already have an active access code")
	ErrCodeNotOwned        = errors.New("access code not found or you are not authorized to revoke it")
	ErrGenerationExhausted = errors.New("could not generate a unique access code")
)

// QuotaError исчерпан лимит кодов тарифа.
type QuotaError struct {
	Max     int
	Current int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("maximum number of access codes reached for your subscription plan (%d/%d)", e.Current, e.Max)
}

// Store хранилище кодов и подписок.
type Store interface {
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	RedeemedCode(ctx context.Context, userID int64, now time.Time) (*models.AccessCode, error)
	CountIssuedCodes(ctx context.Context, userID, subscriptionID int64) (int, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateCode(ctx context.Context, code models.AccessCode, limit int) (int64, error)
	CodeByValue(ctx context.Context, code string) (*models.AccessCode, error)
	RedeemCode(ctx context.Context, codeID, userID int64, at time.Time) (bool, error)
	CodesByCreator(ctx context.Context, userID int64) ([]models.AccessCode, error)
	DeactivateCode(ctx context.Context, codeID, ownerID int64) (*models.AccessCode, error)
}

// Issued результат выпуска кода.
type Issued struct {
	Code            models.AccessCode `json:"access_code"`
	FormattedCode   string            `json:"code"`
	PlanName        string            `json:"plan_name"`
	ExpiresAt       time.Time         `json:"expiry_date"`
	GeneratedCodes  int               `json:"generated_codes"`
	MaxAllowedCodes int               `json:"max_allowed_codes"`
	RemainingCodes  int               `json:"remaining_codes"`
}

// Redeemed результат погашения кода.
type Redeemed struct {
	CodeID        int64     `json:"code_id"`
	Code          string    `json:"code"`
	ExpiresAt     time.Time `json:"expiry_date"`
	OwnerID       int64     `json:"owner_id"`
	OwnerUsername string    `json:"owner_username"`
	PlanName      string    `json:"plan_name"`
}

// Service движок кодов доступа.
type Service struct {
	store       Store
	length      int
	maxAttempts int
	now         func() time.Time
	generate    func(length int) (string, error)
}

// New создает сервис. length длина кода, maxAttempts попыток на одну длину.
func New(store Store, length, maxAttempts int) *Service {
	if length <= 0 {
		length = codegen.DefaultLength
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		store:       store,
		length:      length,
		maxAttempts: maxAttempts,
		now:         time.Now,
		generate:    codegen.Generate,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// maxLength предел роста длины кода при коллизиях.
const maxLength = 64

// GenerateUnique подбирает код, которого еще нет в хранилище. После maxAttempts
// коллизий длина увеличивается на 2.
func (s *Service) GenerateUnique(ctx context.Context) (string, error) {
	const op = "accesscode.GenerateUnique"
	for length := s.length; length <= maxLength; length += 2 {
		for range s.maxAttempts {
			code, err := s.generate(length)
			if err != nil {
				return "", fmt.Errorf("%s: %w", op, err)
			}
			exists, err := s.store.CodeExists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("%s: %w", op, err)
			}
			if !exists {
				return code, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", op, ErrGenerationExhausted)
}

// Validate проверяет код: существует, не погашен, активен, не истек.
func (s *Service) Validate(ctx context.Context, raw string) (*models.AccessCode, error) {
	const op = "accesscode.Validate"
	code, err := s.store.CodeByValue(ctx, codegen.Clean(raw))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case code.Redeemed():
		return code, ErrAlreadyUsed
	case !code.IsActive:
		return code, ErrInactive
	case !code.ExpiresAt.After(s.now()):
		return code, ErrExpired
	}
	return code, nil
}

// Issue выпускает код по активной подписке пользователя.
func (s *Service) Issue(ctx context.Context, userID int64) (*Issued, error) {
	const op = "accesscode.Issue"
	now := s.now()

	sub, err := s.store.ActiveSubscription(ctx, userID, now)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	maxCodes := 0
	planName := ""
	if sub.Plan != nil {
		maxCodes = sub.Plan.MaxAccessCodes
		planName = sub.Plan.Name
	}

	count, err := s.store.CountIssuedCodes(ctx, userID, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if count >= maxCodes {
		return nil, &QuotaError{Max: maxCodes, Current: count}
	}

	code := models.AccessCode{
		CreatedBy:      userID,
		SubscriptionID: sub.ID,
		IsActive:       true,
		ExpiresAt:      sub.EndDate,
		CreatedAt:      now,
	}
	for attempt := 1; ; attempt++ {
		code.Code, err = s.GenerateUnique(ctx)
		if err != nil {
			return nil, err
		}
		code.ID, err = s.store.CreateCode(ctx, code, maxCodes)
		// между проверкой и вставкой такой же код мог появиться у другого запроса
		if errors.Is(err, storage.ErrAlreadyExists) && attempt < s.maxAttempts {
			continue
		}
		// параллельный выпуск успел занять последний слот
		if errors.Is(err, storage.ErrLimitReached) {
			return nil, &QuotaError{Max: maxCodes, Current: maxCodes}
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		break
	}
	code.FormattedCode = codegen.Format(code.Code, "-", 4)
	code.Status = models.CodeAvailable

	generated := count + 1
	return &Issued{
		Code:            code,
		FormattedCode:   code.FormattedCode,
		PlanName:        planName,
		ExpiresAt:       sub.EndDate,
		GeneratedCodes:  generated,
		MaxAllowedCodes: maxCodes,
		RemainingCodes:  max(0, maxCodes-generated),
	}, nil
}

// Redeem гасит код от имени userID. Погашение выполняется одним условным
// UPDATE, поэтому два одновременных запроса не погасят код дважды.
func (s *Service) Redeem(ctx context.Context, userID int64, raw string) (*Redeemed, error) {
	const op = "accesscode.Redeem"
	now := s.now()

	code, err := s.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if code.CreatedBy == userID {
		return nil, ErrOwnCode
	}

	if _, err := s.store.ActiveSubscription(ctx, userID, now); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.store.RedeemedCode(ctx, userID, now); err == nil {
		return nil, ErrAlreadyHasCode
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.store.RedeemCode(ctx, code.ID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		// код погасили или отозвали между проверкой и обновлением
		return nil, ErrAlreadyUsed
	}

	res := &Redeemed{
		CodeID:    code.ID,
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt,
		OwnerID:   code.CreatedBy,
	}
	if code.Subscription != nil {
		res.ExpiresAt = code.Subscription.EndDate
		res.OwnerUsername = code.Subscription.Username
		if code.Subscription.Plan != nil {
			res.PlanName = code.Subscription.Plan.Name
		}
	}
	return res, nil
}

// ListIssued коды, выпущенные пользователем, со статусом и форматированием.
func (s *Service) ListIssued(ctx context.Context, userID int64) ([]models.AccessCode, error) {
	const op = "accesscode.ListIssued"
	codes, err := s.store.CodesByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	for i := range codes {
		codes[i].FormattedCode = codegen.Format(codes[i].Code, "-", 4)
		codes[i].Status = codes[i].StatusAt(now)
	}
	if codes == nil {
		codes = []models.AccessCode{}
	}
	return codes, nil
}

// Revoke деактивирует код владельца, погашен он или нет.
func (s *Service) Revoke(ctx context.Context, userID, codeID int64) (*models.AccessCode, error) {
	const op = "accesscode.Revoke"
	code, err := s.store.DeactivateCode(ctx, codeID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCodeNotOwned
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return code, nil
}
