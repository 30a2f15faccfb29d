package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_AtLeast(t *testing.T) {
	tests := []struct {
		have Role
		min  Role
		want bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleSuperadmin, false},
		{RoleSuperadmin, RoleAdmin, true},
		{RoleSuperadmin, RoleSuperadmin, true},
		{Role("root"), RoleUser, false},
		{RoleAdmin, Role("root"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.have)+">="+string(tt.min), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.have.AtLeast(tt.min))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}

func TestAccessCode_StatusAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	user := int64(7)

	tests := []struct {
		name string
		code AccessCode
		want CodeStatus
	}{
		{"available", AccessCode{IsActive: true, ExpiresAt: now.Add(time.Hour)}, CodeAvailable},
		{"used", AccessCode{IsActive: true, UsedBy: &user, ExpiresAt: now.Add(time.Hour)}, CodeUsed},
		{"redeemer deleted", AccessCode{IsActive: true, UsedAt: &now, ExpiresAt: now.Add(time.Hour)}, CodeUsed},
		{"inactive", AccessCode{IsActive: false, ExpiresAt: now.Add(time.Hour)}, CodeInactive},
		{"expired wins over inactive", AccessCode{IsActive: false, ExpiresAt: now.Add(-time.Hour)}, CodeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.StatusAt(now))
		})
	}
}

func TestContentKey(t *testing.T) {
	assert.Equal(t, "550", ContentKey(ContentMovie, "550"))
	assert.Equal(t, "tv_1399", ContentKey(ContentTV, "1399"))

	typ, id := SplitContentKey("tv_1399")
	assert.Equal(t, ContentTV, typ)
	assert.Equal(t, "1399", id)

	typ, id = SplitContentKey("550")
	assert.Equal(t, ContentMovie, typ)
	assert.Equal(t, "550", id)
}

func TestPage(t *testing.T) {
	p := Page{Page: 0, PerPage: 500}.Normalize(10, 100)
	assert.Equal(t, Page{Page: 1, PerPage: 100}, p)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, 20, Page{Page: 3, PerPage: 10}.Offset())

	pg := NewPagination(Page{Page: 2, PerPage: 10}, 21)
	assert.Equal(t, 3, pg.TotalPages)
}

func TestEntitlement_Status(t *testing.T) {
	assert.Equal(t, "active", Entitlement{HasSubscription: true}.Status())
	assert.Equal(t, "shared", Entitlement{HasAccessCode: true}.Status())
	assert.Equal(t, "inactive", Entitlement{}.Status())
	assert.False(t, Entitlement{}.Entitled())
}
