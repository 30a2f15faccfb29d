package models

import "time"

// CodeStatus состояние кода доступа для отображения владельцу.
type CodeStatus string

const (
	CodeAvailable CodeStatus = "Available"
	CodeUsed      CodeStatus = "Used"
	CodeInactive  CodeStatus = "Inactive"
	CodeExpired   CodeStatus = "Expired"
)

// AccessCode код доступа, выпущенный владельцем подписки.
type AccessCode struct {
	ID             int64         `json:"id"`
	Code           string        `json:"code"`
	FormattedCode  string        `json:"formatted_code,omitempty"`
	CreatedBy      int64         `json:"created_by"`
	SubscriptionID int64         `json:"subscription_id"`
	UsedBy         *int64        `json:"used_by,omitempty"`
	UsedByUsername string        `json:"used_by_username,omitempty"`
	UsedAt         *time.Time    `json:"used_at,omitempty"`
	IsActive       bool          `json:"is_active"`
	ExpiresAt      time.Time     `json:"expires_at"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         CodeStatus    `json:"status,omitempty"`
	Subscription   *Subscription `json:"-"`
}

// Redeemed погашен ли код. used_by обнуляется при удалении погасившего,
// поэтому признаком служит used_at.
func (c AccessCode) Redeemed() bool {
	return c.UsedAt != nil || c.UsedBy != nil
}

// StatusAt вычисляет статус кода в момент now.
func (c AccessCode) StatusAt(now time.Time) CodeStatus {
	switch {
	case !c.ExpiresAt.After(now):
		return CodeExpired
	case !c.IsActive:
		return CodeInactive
	case c.Redeemed():
		return CodeUsed
	default:
		return CodeAvailable
	}
}
