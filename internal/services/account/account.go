// Package account управляет учетными записями: профиль, администрирование,
// роли и статистика.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/password"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrEmailTaken        = errors.New("email already exists")
	ErrDuplicate         = errors.New("username or email already exists")
	ErrForbidden         = errors.New("unauthorized to access this user")
	ErrRoleChange        = errors.New("only superadmin can update roles")
	ErrInvalidRole       = errors.New("invalid role")
	ErrLastSuperadmin    = errors.New("cannot demote or deactivate the last superadmin")
	ErrDeleteSuperadmin  = errors.New("cannot delete superadmin account")
	ErrNothingToUpdate   = errors.New("no fields to update")
	ErrBootstrapDisabled = errors.New("superadmin bootstrap is not configured")
)

// Repository хранилище учетных записей.
type Repository interface {
	CreateAccount(ctx context.Context, acc models.Account) (int64, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByUsername(ctx context.Context, username string) (*models.Account, error)
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAccounts(ctx context.Context, search string, page models.Page) ([]models.Account, int, error)
	UpdateAccount(ctx context.Context, id int64, upd models.AccountUpdate) (*models.Account, error)
	// SetRole меняет роль одним условным UPDATE. false означает, что
	// изменение лишило бы систему последнего суперадмина.
	SetRole(ctx context.Context, id int64, role models.Role) (bool, error)
	// SetActive включает или отключает учетную запись с той же проверкой
	// последнего суперадмина.
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
	DeleteAccount(ctx context.Context, id int64) error
	CountByRole(ctx context.Context, role models.Role) (int, error)
	Stats(ctx context.Context, now time.Time) (*models.Stats, error)
	LibraryCounts(ctx context.Context, id int64) (favorites int, history int, err error)
}

// Resolver источник права доступа.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (*models.Entitlement, error)
}

// Auditor журнал аудита.
type Auditor interface {
	RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta)
}

// Overview ответ на запрос собственного профиля.
type Overview struct {
	models.Account
	Subscription   *models.Entitlement `json:"subscription"`
	FavoritesCount int                 `json:"favorites_count"`
	HistoryCount   int                 `json:"history_count"`
}

// NewAccount данные для создания учетной записи администратором.
type NewAccount struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}

// Service сервис учетных записей.
type Service struct {
	repo     Repository
	resolver Resolver
	audit    Auditor
	now      func() time.Time
}

// New создает сервис.
func New(repo Repository, resolver Resolver, audit Auditor) *Service {
	return &Service{repo: repo, resolver: resolver, audit: audit, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Me собственная учетная запись с правом доступа и счетчиками библиотеки.
func (s *Service) Me(ctx context.Context, caller models.Caller) (*Overview, error) {
	const op = "account.Me"
	acc, err := s.get(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ent, err := s.resolver.Resolve(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	favorites, history, err := s.repo.LibraryCounts(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Overview{
		Account:        *acc,
		Subscription:   ent,
		FavoritesCount: favorites,
		HistoryCount:   history,
	}, nil
}

// Get учетная запись по id. Доступно владельцу и администраторам.
func (s *Service) Get(ctx context.Context, caller models.Caller, id int64) (*models.Account, error) {
	const op = "account.Get"
	if caller.ID != id && !caller.Role.AtLeast(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	acc, err := s.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// List страница учетных записей с необязательным поиском по имени и почте.
func (s *Service) List(ctx context.Context, search string, page models.Page) (*models.AccountList, error) {
	const op = "account.List"
	page = page.Normalize(10, 100)
	users, total, err := s.repo.ListAccounts(ctx, search, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if users == nil {
		users = []models.Account{}
	}
	return &models.AccountList{Users: users, Pagination: models.NewPagination(page, total)}, nil
}

// Create создает учетную запись с заданной ролью.
func (s *Service) Create(ctx context.Context, caller models.Caller, in NewAccount) (*models.Account, error) {
	const op = "account.Create"
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	acc := models.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	acc.ID, err = s.repo.CreateAccount(ctx, acc)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, caller.ID, models.ActionCreateUser,
		fmt.Sprintf("Created user %s with role %s", acc.Username, acc.Role), caller.Meta)
	return &acc, nil
}

// Update частично обновляет учетную запись. Роль меняет только суперадмин,
// учетные записи со старшей ролью администратор не трогает.
func (s *Service) Update(ctx context.Context, caller models.Caller, id int64, upd models.AccountUpdate) (*models.Account, error) {
	const op = "account.Update"
	if caller.ID != id && !caller.Role.AtLeast(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if upd.Role != nil && caller.Role != models.RoleSuperadmin {
		return nil, ErrRoleChange
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if upd.IsActive != nil && !caller.Role.AtLeast(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if upd.Empty() {
		return nil, ErrNothingToUpdate
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if caller.ID != id && !caller.Role.AtLeast(current.Role) {
		return nil, ErrForbidden
	}
	if err := s.checkUnique(ctx, id, upd); err != nil {
		return nil, err
	}

	role, active := upd.Role, upd.IsActive
	upd.Role, upd.IsActive = nil, nil
	if role != nil && *role != current.Role {
		if err := s.setRole(ctx, id, *role); err != nil {
			return nil, err
		}
	}
	if active != nil && *active != current.IsActive {
		if err := s.setActive(ctx, id, *active); err != nil {
			return nil, err
		}
	}

	acc := current
	if !upd.Empty() {
		acc, err = s.repo.UpdateAccount(ctx, id, upd)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrDuplicate
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if role != nil {
		acc.Role = *role
	}
	if active != nil {
		acc.IsActive = *active
	}
	s.audit.RecordFor(ctx, caller.ID, models.ActionUpdateUser, fmt.Sprintf("Updated user %d", id), caller.Meta)
	return acc, nil
}

// Delete удаляет учетную запись. Суперадмина удалить нельзя.
func (s *Service) Delete(ctx context.Context, caller models.Caller, id int64) error {
	const op = "account.Delete"
	acc, err := s.get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if acc.Role == models.RoleSuperadmin {
		return ErrDeleteSuperadmin
	}
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, caller.ID, models.ActionDeleteUser,
		fmt.Sprintf("Deleted user %s (id %d)", acc.Username, id), caller.Meta)
	return nil
}

// ChangeRole меняет роль с проверкой последнего суперадмина.
func (s *Service) ChangeRole(ctx context.Context, caller models.Caller, id int64, role models.Role) (*models.Account, error) {
	const op = "account.ChangeRole"
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	acc, err := s.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if acc.Role == role {
		return acc, nil
	}
	if err := s.setRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.audit.RecordFor(ctx, caller.ID, models.ActionChangeRole,
		fmt.Sprintf("Changed role of user %s from %s to %s", acc.Username, acc.Role, role), caller.Meta)
	acc.Role = role
	return acc, nil
}

// SetPassword задает новый пароль учетной записи от имени суперадмина.
func (s *Service) SetPassword(ctx context.Context, caller models.Caller, id int64, newPassword string) error {
	const op = "account.SetPassword"
	acc, err := s.get(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.UpdateAccount(ctx, id, models.AccountUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.audit.RecordFor(ctx, caller.ID, models.ActionAdminPasswordReset,
		fmt.Sprintf("Reset password for user %s", acc.Username), caller.Meta)
	return nil
}

// Stats сводка для панели администратора.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	const op = "account.Stats"
	st, err := s.repo.Stats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// EnsureSuperadmin создает суперадмина, если в системе нет ни одного.
// Возвращает true, если учетная запись была создана.
func (s *Service) EnsureSuperadmin(ctx context.Context, username, email, pass string) (bool, error) {
	const op = "account.EnsureSuperadmin"
	n, err := s.repo.CountByRole(ctx, models.RoleSuperadmin)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return false, nil
	}
	if username == "" || email == "" || pass == "" {
		return false, ErrBootstrapDisabled
	}
	hash, err := password.Hash(pass)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.repo.CreateAccount(ctx, models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleSuperadmin,
		IsActive:     true,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (s *Service) get(ctx context.Context, id int64) (*models.Account, error) {
	acc, err := s.repo.AccountByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return acc, err
}

func (s *Service) setRole(ctx context.Context, id int64, role models.Role) error {
	const op = "account.setRole"
	ok, err := s.repo.SetRole(ctx, id, role)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrLastSuperadmin
	}
	return nil
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) error {
	const op = "account.setActive"
	ok, err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrLastSuperadmin
	}
	return nil
}

func (s *Service) checkUnique(ctx context.Context, id int64, upd models.AccountUpdate) error {
	const op = "account.checkUnique"
	if upd.Username != nil {
		other, err := s.repo.AccountByUsername(ctx, *upd.Username)
		switch {
		case err == nil && other.ID != id:
			return ErrUsernameTaken
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if upd.Email != nil {
		other, err := s.repo.AccountByEmail(ctx, *upd.Email)
		switch {
		case err == nil && other.ID != id:
			return ErrEmailTaken
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
