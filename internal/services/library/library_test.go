package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type catalogStub struct {
	cards map[string]string
}

func (c catalogStub) Lookup(_ context.Context, kind, id string) (json.RawMessage, error) {
	card, ok := c.cards[kind+"/"+id]
	if !ok {
		return nil, errors.New("404 Not Found: The resource you requested could not be found.")
	}
	return json.RawMessage(card), nil
}

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) AddFavorite(ctx context.Context, fav models.Favorite) (int64, error) {
	args := m.Called(ctx, fav)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) RemoveFavorite(ctx context.Context, userID int64, contentID string) error {
	args := m.Called(ctx, userID, contentID)
	return args.Error(0)
}

func (m *RepoMock) Favorites(ctx context.Context, userID int64) ([]models.Favorite, error) {
	args := m.Called(ctx, userID)
	favs, _ := args.Get(0).([]models.Favorite)
	return favs, args.Error(1)
}

func (m *RepoMock) IsFavorite(ctx context.Context, userID int64, contentID string) (bool, error) {
	args := m.Called(ctx, userID, contentID)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) UpsertHistory(ctx context.Context, e models.HistoryEntry) (*models.HistoryEntry, error) {
	args := m.Called(ctx, e)
	out, _ := args.Get(0).(*models.HistoryEntry)
	return out, args.Error(1)
}

func (m *RepoMock) History(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, userID, limit)
	out, _ := args.Get(0).([]models.HistoryEntry)
	return out, args.Error(1)
}

func (m *RepoMock) DeleteHistory(ctx context.Context, userID, id int64) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *RepoMock) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func TestFavorites_Add(t *testing.T) {
	repo := new(RepoMock)
	s := NewFavorites(newNoopLogger(), repo, catalogStub{})
	ctx := context.Background()

	repo.On("AddFavorite", ctx, mock.MatchedBy(func(f models.Favorite) bool {
		return f.UserID == 3 && f.ContentID == "tv_1399"
	})).Return(int64(11), nil).Once()
	repo.On("AddFavorite", ctx, mock.MatchedBy(func(f models.Favorite) bool {
		return f.ContentID == "603"
	})).Return(int64(0), fmt.Errorf("storage.AddFavorite: %w", storage.ErrAlreadyExists)).Once()

	fav, err := s.Add(ctx, 3, "tv", "1399")
	require.NoError(t, err)
	assert.Equal(t, int64(11), fav.ID)
	assert.Equal(t, "tv_1399", fav.ContentID)

	_, err = s.Add(ctx, 3, "movie", "603")
	assert.ErrorIs(t, err, ErrAlreadyFavorite)

	_, err = s.Add(ctx, 3, "book", "1")
	assert.ErrorIs(t, err, ErrUnknownKind)

	repo.AssertExpectations(t)
}

func TestFavorites_RemoveMissing(t *testing.T) {
	repo := new(RepoMock)
	s := NewFavorites(newNoopLogger(), repo, catalogStub{})
	ctx := context.Background()

	repo.On("RemoveFavorite", ctx, int64(3), "603").Return(storage.ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, 3, "603"), ErrNotFavorite)
}

func TestFavorites_ListSplitsAndEnriches(t *testing.T) {
	repo := new(RepoMock)
	cat := catalogStub{cards: map[string]string{
		"movie/603": `{"id":603,"title":"The Matrix"}`,
		"tv/1399":   `{"id":1399,"name":"Game of Thrones"}`,
	}}
	s := NewFavorites(newNoopLogger(), repo, cat)
	ctx := context.Background()

	repo.On("Favorites", ctx, int64(3)).Return([]models.Favorite{
		{ID: 1, UserID: 3, ContentID: "tv_1399"},
		{ID: 2, UserID: 3, ContentID: "603"},
		{ID: 3, UserID: 3, ContentID: "999999"},
	}, nil)

	lib, err := s.List(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, lib.Total)
	require.Len(t, lib.TV, 1)
	require.Len(t, lib.Movies, 2)

	tv, ok := lib.TV[0].Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Game of Thrones", tv["name"])
	assert.Equal(t, "tv", tv["media_type"])

	movie, ok := lib.Movies[0].Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "movie", movie["media_type"])

	assert.Nil(t, lib.Movies[1].Details, "недоступная карточка не ломает список")

	raw, err := json.Marshal(lib.Movies[1])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "details")
}

func TestHistory_Record(t *testing.T) {
	repo := new(RepoMock)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewHistory(newNoopLogger(), repo, catalogStub{}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	want := models.HistoryEntry{UserID: 3, ContentID: "603", WatchedAt: now, WatchDuration: 300, WatchPercentage: 12.5}
	repo.On("UpsertHistory", ctx, want).Return(&models.HistoryEntry{ID: 5, UserID: 3, ContentID: "603"}, nil)

	e, err := s.Record(ctx, 3, Progress{ContentID: "603", WatchDuration: 300, WatchPercentage: 12.5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.ID)

	_, err = s.Record(ctx, 3, Progress{ContentID: "603", WatchPercentage: 120})
	assert.ErrorIs(t, err, ErrInvalidProgress)
	_, err = s.Record(ctx, 3, Progress{ContentID: "603", WatchDuration: -1})
	assert.ErrorIs(t, err, ErrInvalidProgress)

	repo.AssertNumberOfCalls(t, "UpsertHistory", 1)
}

func TestHistory_ListDeleteClear(t *testing.T) {
	repo := new(RepoMock)
	cat := catalogStub{cards: map[string]string{"tv/66732": `{"name":"Stranger Things"}`}}
	s := NewHistory(newNoopLogger(), repo, cat)
	ctx := context.Background()

	repo.On("History", ctx, int64(3), historyLimit).Return([]models.HistoryEntry{
		{ID: 1, ContentID: "tv_66732", WatchPercentage: 50},
	}, nil)
	repo.On("DeleteHistory", ctx, int64(3), int64(9)).Return(storage.ErrNotFound)
	repo.On("ClearHistory", ctx, int64(3)).Return(int64(4), nil)

	lib, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, lib.TV, 1)
	assert.Empty(t, lib.Movies)
	assert.Equal(t, 50.0, lib.TV[0].WatchPercentage)

	assert.ErrorIs(t, s.Delete(ctx, 3, 9), ErrHistoryNotFound)

	n, err := s.Clear(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

// profileStore хранилище профилей в памяти с теми же ограничениями, что и БД.
type profileStore struct {
	next     int64
	profiles []models.Profile
}

func (p *profileStore) Profiles(_ context.Context, userID int64) ([]models.Profile, error) {
	var out []models.Profile
	for _, pr := range p.profiles {
		if pr.UserID == userID {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (p *profileStore) ProfileByID(_ context.Context, userID, id int64) (*models.Profile, error) {
	for i := range p.profiles {
		if p.profiles[i].ID == id && p.profiles[i].UserID == userID {
			pr := p.profiles[i]
			return &pr, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (p *profileStore) CreateProfile(ctx context.Context, pr models.Profile, limit int) (int64, error) {
	own, _ := p.Profiles(ctx, pr.UserID)
	if len(own) >= limit {
		return 0, storage.ErrLimitReached
	}
	for _, existing := range own {
		if existing.Name == pr.Name {
			return 0, storage.ErrAlreadyExists
		}
	}
	p.next++
	pr.ID = p.next
	p.profiles = append(p.profiles, pr)
	return pr.ID, nil
}

func (p *profileStore) UpdateProfile(_ context.Context, userID, id int64, upd models.ProfileUpdate) (*models.Profile, error) {
	for i := range p.profiles {
		if p.profiles[i].ID != id || p.profiles[i].UserID != userID {
			continue
		}
		if upd.Name != nil {
			p.profiles[i].Name = *upd.Name
		}
		if upd.Avatar != nil {
			p.profiles[i].Avatar = *upd.Avatar
		}
		if upd.IsKids != nil {
			p.profiles[i].IsKids = *upd.IsKids
		}
		pr := p.profiles[i]
		return &pr, nil
	}
	return nil, storage.ErrNotFound
}

func (p *profileStore) DeleteProfile(_ context.Context, userID, id int64) error {
	for i := range p.profiles {
		if p.profiles[i].ID == id && p.profiles[i].UserID == userID {
			p.profiles = append(p.profiles[:i], p.profiles[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func TestProfiles(t *testing.T) {
	s := NewProfiles(&profileStore{})
	ctx := context.Background()

	empty, err := s.List(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first, err := s.Create(ctx, 3, "Alice", "", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultAvatar, first.Avatar)

	_, err = s.Create(ctx, 3, "Alice", "a.png", false)
	assert.ErrorIs(t, err, ErrProfileNameTaken)

	_, err = s.Create(ctx, 3, "", "", false)
	assert.ErrorIs(t, err, ErrProfileNameEmpty)

	for i := 2; i <= MaxProfiles; i++ {
		_, err := s.Create(ctx, 3, fmt.Sprintf("kid%d", i), "kid.png", true)
		require.NoError(t, err)
	}
	_, err = s.Create(ctx, 3, "sixth", "", false)
	assert.ErrorIs(t, err, ErrProfileLimit)

	_, err = s.Update(ctx, 3, first.ID, models.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNothingToUpdate)

	avatar := "cat.png"
	updated, err := s.Update(ctx, 3, first.ID, models.ProfileUpdate{Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "cat.png", updated.Avatar)
	assert.Equal(t, "Alice", updated.Name)

	_, err = s.Get(ctx, 4, first.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.ErrorIs(t, s.Delete(ctx, 4, first.ID), ErrProfileNotFound)
	require.NoError(t, s.Delete(ctx, 3, first.ID))

	_, err = s.Create(ctx, 3, "sixth", "", false)
	assert.NoError(t, err, "после удаления профиль снова можно создать")
}
