// Package storage объявляет ошибки, общие для всех реализаций хранилища.
package storage

import "errors"

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists нарушено ограничение уникальности.
	ErrAlreadyExists = errors.New("already exists")
	// ErrReferenced запись нельзя удалить, на нее ссылаются другие.
	ErrReferenced = errors.New("referenced by other records")
	// ErrLimitReached условная вставка отклонена из-за лимита записей.
	ErrLimitReached = errors.New("limit reached")
)

// Имена ограничений уникальности учетных записей.
const (
	UniqueUsername = "users_username_key"
	UniqueEmail    = "users_email_key"
)

// UniqueError нарушение уникальности с именем ограничения.
// errors.Is(err, ErrAlreadyExists) для нее истинно.
type UniqueError struct {
	Constraint string
}

func (e *UniqueError) Error() string {
	return ErrAlreadyExists.Error() + ": " + e.Constraint
}

func (e *UniqueError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ViolatedConstraint имя нарушенного ограничения уникальности или пустая строка.
func ViolatedConstraint(err error) string {
	var ue *UniqueError
	if errors.As(err, &ue) {
		return ue.Constraint
	}
	return ""
}
