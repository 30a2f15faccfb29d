// Package password хеширует и проверяет пароли через bcrypt.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost стоимость bcrypt, используемая при хешировании.
const Cost = bcrypt.DefaultCost

// Hash возвращает bcrypt-хеш пароля. Соль каждый раз новая,
// поэтому два вызова на одном входе дают разные хеши.
func Hash(secret string) (string, error) {
	const op = "password.Hash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), Cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// Verify сравнивает пароль с хешем. Поврежденный хеш дает false, а не ошибку.
func Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
