// Package accesscode генерирует, форматирует и нормализует коды доступа.
package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength длина кода по умолчанию.
const DefaultLength = 16

// Generate возвращает length случайных символов из [A-Za-z0-9].
func Generate(length int) (string, error) {
	const op = "accesscode.Generate"
	if length <= 0 {
		return "", fmt.Errorf("%s: non-positive length %d", op, length)
	}
	limit := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Format разбивает код на группы по segment символов через sep.
func Format(code, sep string, segment int) string {
	if segment <= 0 || len(code) <= segment {
		return code
	}
	parts := make([]string, 0, (len(code)+segment-1)/segment)
	for i := 0; i < len(code); i += segment {
		end := min(i+segment, len(code))
		parts = append(parts, code[i:end])
	}
	return strings.Join(parts, sep)
}

// Clean убирает дефисы и пробельные символы, введенные пользователем.
func Clean(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}
