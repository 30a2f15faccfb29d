package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

const (
	// MaxProfiles предел профилей на учетную запись.
	MaxProfiles   = 5
	DefaultAvatar = "default.png"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrProfileLimit     = fmt.Errorf("maximum number of profiles reached (%d)", MaxProfiles)
	ErrProfileNameTaken = errors.New("profile name already exists")
	ErrNothingToUpdate  = errors.New("no fields to update")
	ErrProfileNameEmpty = errors.New("profile name is required")
)

// ProfilesRepository хранилище профилей.
type ProfilesRepository interface {
	Profiles(ctx context.Context, userID int64) ([]models.Profile, error)
	ProfileByID(ctx context.Context, userID, id int64) (*models.Profile, error)
	CreateProfile(ctx context.Context, p models.Profile, limit int) (int64, error)
	UpdateProfile(ctx context.Context, userID, id int64, upd models.ProfileUpdate) (*models.Profile, error)
	DeleteProfile(ctx context.Context, userID, id int64) error
}

// Profiles сервис профилей просмотра.
type Profiles struct {
	repo ProfilesRepository
	now  func() time.Time
}

// NewProfiles создает сервис профилей.
func NewProfiles(repo ProfilesRepository) *Profiles {
	return &Profiles{repo: repo, now: time.Now}
}

// List профили учетной записи.
func (s *Profiles) List(ctx context.Context, userID int64) ([]models.Profile, error) {
	const op = "library.Profiles.List"
	profiles, err := s.repo.Profiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	return profiles, nil
}

// Get профиль владельца.
func (s *Profiles) Get(ctx context.Context, userID, id int64) (*models.Profile, error) {
	const op = "library.Profiles.Get"
	p, err := s.repo.ProfileByID(ctx, userID, id)
	if err != nil {
		return nil, mapProfileErr(op, err)
	}
	return p, nil
}

// Create создает профиль. Пустой аватар заменяется на аватар по умолчанию.
func (s *Profiles) Create(ctx context.Context, userID int64, name, avatar string, isKids bool) (*models.Profile, error) {
	const op = "library.Profiles.Create"
	if name == "" {
		return nil, ErrProfileNameEmpty
	}
	if avatar == "" {
		avatar = DefaultAvatar
	}
	p := models.Profile{
		UserID:    userID,
		Name:      name,
		Avatar:    avatar,
		IsKids:    isKids,
		CreatedAt: s.now(),
	}
	id, err := s.repo.CreateProfile(ctx, p, MaxProfiles)
	if err != nil {
		return nil, mapProfileErr(op, err)
	}
	p.ID = id
	return &p, nil
}

// Update частично обновляет профиль.
func (s *Profiles) Update(ctx context.Context, userID, id int64, upd models.ProfileUpdate) (*models.Profile, error) {
	const op = "library.Profiles.Update"
	if upd.Name == nil && upd.Avatar == nil && upd.IsKids == nil {
		return nil, ErrNothingToUpdate
	}
	if upd.Name != nil && *upd.Name == "" {
		return nil, ErrProfileNameEmpty
	}
	p, err := s.repo.UpdateProfile(ctx, userID, id, upd)
	if err != nil {
		return nil, mapProfileErr(op, err)
	}
	return p, nil
}

// Delete удаляет профиль.
func (s *Profiles) Delete(ctx context.Context, userID, id int64) error {
	const op = "library.Profiles.Delete"
	if err := s.repo.DeleteProfile(ctx, userID, id); err != nil {
		return mapProfileErr(op, err)
	}
	return nil
}

func mapProfileErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrProfileNotFound
	case errors.Is(err, storage.ErrLimitReached):
		return ErrProfileLimit
	case errors.Is(err, storage.ErrAlreadyExists):
		return ErrProfileNameTaken
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
