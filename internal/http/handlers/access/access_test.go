package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/accesscode"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Issue(ctx context.Context, userID int64) (*accesscode.Issued, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).(*accesscode.Issued)
	return out, args.Error(1)
}

func (m *ServiceMock) Redeem(ctx context.Context, userID int64, raw string) (*accesscode.Redeemed, error) {
	args := m.Called(ctx, userID, raw)
	out, _ := args.Get(0).(*accesscode.Redeemed)
	return out, args.Error(1)
}

func (m *ServiceMock) ListIssued(ctx context.Context, userID int64) ([]models.AccessCode, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).([]models.AccessCode)
	return out, args.Error(1)
}

func (m *ServiceMock) Revoke(ctx context.Context, userID, codeID int64) (*models.AccessCode, error) {
	args := m.Called(ctx, userID, codeID)
	out, _ := args.Get(0).(*models.AccessCode)
	return out, args.Error(1)
}

type auditSpy struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditSpy) RecordFor(_ context.Context, _ int64, action, _ string, _ models.RequestMeta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var bob = models.Caller{ID: 4, Username: "bob", Role: models.RoleUser}

func router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middlewarectx.WithCaller(req.Context(), bob)))
		})
	})
	r.Post("/access/generate", h.Generate)
	r.Post("/access/redeem", h.Redeem)
	r.Get("/access/me", h.Me)
	r.Post("/access/revoke/{id}", h.Revoke)
	return r
}

func call(t *testing.T, handler http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf []byte
	if body != nil {
		var err error
		buf, err = json.Marshal(body)
		require.NoError(t, err)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(method, target, bytes.NewReader(buf)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestHandler_Generate(t *testing.T) {
	t.Run("issued", func(t *testing.T) {
		svc := new(ServiceMock)
		audit := &auditSpy{}
		svc.On("Issue", mock.Anything, int64(4)).Return(&accesscode.Issued{
			Code:            models.AccessCode{ID: 7, Code: "ABCDEFGHJKLMNPQR"},
			FormattedCode:   "ABCD-EFGH-JKLM-NPQR",
			GeneratedCodes:  1,
			MaxAllowedCodes: 3,
			RemainingCodes:  2,
		}, nil).Once()

		rr, resp := call(t, router(New(newNoopLogger(), svc, audit)), http.MethodPost, "/access/generate", nil)
		require.Equal(t, http.StatusCreated, rr.Code)
		data := resp["data"].(map[string]any)
		assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", data["code"])
		assert.EqualValues(t, 2, data["remaining_codes"])
		assert.Equal(t, []string{models.ActionGenerateAccessCode}, audit.actions)
	})

	t.Run("quota", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Issue", mock.Anything, int64(4)).Return(nil, &accesscode.QuotaError{Max: 1, Current: 1}).Once()

		rr, resp := call(t, router(New(newNoopLogger(), svc, &auditSpy{})), http.MethodPost, "/access/generate", nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, resp["error"], "(1/1)")
	})

	t.Run("no subscription", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Issue", mock.Anything, int64(4)).Return(nil, accesscode.ErrNoSubscription).Once()

		rr, _ := call(t, router(New(newNoopLogger(), svc, &auditSpy{})), http.MethodPost, "/access/generate", nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestHandler_Redeem(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown", accesscode.ErrNotFound, http.StatusNotFound},
		{"used", accesscode.ErrAlreadyUsed, http.StatusConflict},
		{"own", accesscode.ErrOwnCode, http.StatusConflict},
		{"subscribed", accesscode.ErrAlreadySubscribed, http.StatusConflict},
		{"has code", accesscode.ErrAlreadyHasCode, http.StatusConflict},
		{"inactive", accesscode.ErrInactive, http.StatusBadRequest},
		{"expired", accesscode.ErrExpired, http.StatusBadRequest},
		{"wrapped lookup failure", fmt.Errorf("accesscode.Validate: %w", accesscode.ErrNotFound), http.StatusNotFound},
		{"store failure", fmt.Errorf("accesscode.Redeem: %w", assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			audit := &auditSpy{}
			var out *accesscode.Redeemed
			if tt.err == nil {
				out = &accesscode.Redeemed{CodeID: 7, OwnerID: 3, OwnerUsername: "alice", ExpiresAt: time.Now().Add(time.Hour)}
			}
			svc.On("Redeem", mock.Anything, int64(4), "ABCD-EFGH-JKLM-NPQR").Return(out, tt.err).Once()

			rr, resp := call(t, router(New(newNoopLogger(), svc, audit)), http.MethodPost, "/access/redeem",
				RedeemRequest{Code: "ABCD-EFGH-JKLM-NPQR"})
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.err == nil {
				assert.Equal(t, "alice", resp["data"].(map[string]any)["owner_username"])
				assert.Equal(t, []string{models.ActionRedeemAccessCode}, audit.actions)
			} else {
				assert.Empty(t, audit.actions)
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp["error"])
			} else if tt.err != nil {
				assert.NotContains(t, resp["error"], "accesscode.")
			}
		})
	}

	t.Run("missing code", func(t *testing.T) {
		rr, _ := call(t, router(New(newNoopLogger(), new(ServiceMock), &auditSpy{})), http.MethodPost,
			"/access/redeem", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandler_MeAndRevoke(t *testing.T) {
	svc := new(ServiceMock)
	audit := &auditSpy{}
	svc.On("ListIssued", mock.Anything, int64(4)).Return([]models.AccessCode{
		{ID: 7, FormattedCode: "ABCD-EFGH-JKLM-NPQR", Status: models.CodeAvailable},
	}, nil).Once()
	svc.On("Revoke", mock.Anything, int64(4), int64(7)).Return(&models.AccessCode{ID: 7, IsActive: false}, nil).Once()
	svc.On("Revoke", mock.Anything, int64(4), int64(8)).Return(nil, accesscode.ErrCodeNotOwned).Once()
	h := router(New(newNoopLogger(), svc, audit))

	rr, resp := call(t, h, http.MethodGet, "/access/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	codes := resp["data"].([]any)
	require.Len(t, codes, 1)
	assert.Equal(t, string(models.CodeAvailable), codes[0].(map[string]any)["status"])

	rr, _ = call(t, h, http.MethodPost, "/access/revoke/7", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = call(t, h, http.MethodPost, "/access/revoke/8", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Equal(t, []string{models.ActionRevokeAccessCode}, audit.actions)
}
