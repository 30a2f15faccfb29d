package models

import "time"

// Источники доступа к каталогу.
const (
	SourceSubscription = "subscription"
	SourceAccessCode   = "access_code"
)

// Entitlement право пользователя на платный контент и квота на выпуск кодов.
type Entitlement struct {
	HasSubscription bool       `json:"has_subscription"`
	HasAccessCode   bool       `json:"has_access_code"`
	Source          string     `json:"source,omitempty"`
	Plan            *Plan      `json:"plan,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	SubscriptionID  int64      `json:"-"`
	IssuedCodes     int        `json:"issued_codes"`
	MaxCodes        int        `json:"max_codes"`
	RemainingCodes  int        `json:"remaining_codes"`
	OwnerUsername   string     `json:"owner_username,omitempty"`
}

// Entitled сообщает, есть ли у пользователя доступ.
func (e Entitlement) Entitled() bool {
	return e.HasSubscription || e.HasAccessCode
}

// Status краткий статус: active, shared или inactive.
func (e Entitlement) Status() string {
	switch {
	case e.HasSubscription:
		return "active"
	case e.HasAccessCode:
		return "shared"
	default:
		return "inactive"
	}
}
