// Package models содержит доменные структуры сервиса: учетные записи,
// тарифы и подписки, коды доступа, журнал аудита и пользовательскую библиотеку.
package models

import "time"

// Account зарегистрированная учетная запись.
type Account struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"is_active"`
	FailedLoginAttempts int        `json:"-"`
	LastFailedLogin     *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	PasswordResetAt     *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
}

// AccountUpdate частичное обновление учетной записи, nil означает "не менять".
type AccountUpdate struct {
	Username     *string
	Email        *string
	Role         *Role
	PasswordHash *string
	IsActive     *bool
}

// Empty сообщает, что обновлять нечего.
func (u AccountUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Role == nil && u.PasswordHash == nil && u.IsActive == nil
}

// RequestMeta сведения о клиенте, от имени которого выполняется операция.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Caller аутентифицированный автор запроса. Роль перечитана из хранилища.
type Caller struct {
	ID       int64
	Username string
	Role     Role
	Meta     RequestMeta
}

// Page параметры постраничной выборки.
type Page struct {
	Page    int
	PerPage int
}

// Offset смещение первой строки страницы.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (p Page) Normalize(defaultPerPage, maxPerPage int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Pagination метаданные страницы в ответе.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination считает количество страниц.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Pagination{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: pages}
}

// AccountList страница учетных записей.
type AccountList struct {
	Users      []Account  `json:"users"`
	Pagination Pagination `json:"pagination"`
}
