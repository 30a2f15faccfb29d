package models

import "fmt"

// Role роль учетной записи.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleAdmin:      2,
	RoleSuperadmin: 3,
}

// Valid сообщает, входит ли роль в известный набор.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast сравнивает роли в порядке user < admin < superadmin.
// Неизвестная роль не удовлетворяет ни одному порогу.
func (r Role) AtLeast(minRole Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	need, ok := roleRank[minRole]
	if !ok {
		return false
	}
	return have >= need
}

// ParseRole разбирает строку в Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
