package models

import "time"

// PaymentCompleted статус оплаты оформленной подписки.
const PaymentCompleted = "completed"

// Plan тарифный план.
type Plan struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Price          float64   `json:"price"`
	DurationMonths int       `json:"duration_months"`
	MaxAccessCodes int       `json:"max_access_codes"`
	Description    string    `json:"description"`
	Features       []string  `json:"features"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlanUpdate частичное обновление тарифа.
type PlanUpdate struct {
	Name           *string
	Price          *float64
	DurationMonths *int
	MaxAccessCodes *int
	Description    *string
	Features       []string
}

// Subscription подписка пользователя на тариф.
type Subscription struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	PlanID        int64     `json:"plan_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	IsActive      bool      `json:"is_active"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
	Plan          *Plan     `json:"plan,omitempty"`
	Username      string    `json:"username,omitempty"`
}

// ActiveAt сообщает, действует ли подписка в момент t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.IsActive && s.EndDate.After(t)
}

// SubscriptionList страница подписок для администратора.
type SubscriptionList struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Pagination    Pagination     `json:"pagination"`
}

// SubscriptionDetails текущая подписка вместе с выпущенными по ней кодами.
type SubscriptionDetails struct {
	Subscription Subscription `json:"subscription"`
	AccessCodes  []AccessCode `json:"access_codes"`
}
