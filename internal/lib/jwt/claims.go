package jwt

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Class назначение токена.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

// Binding контекст запроса, к которому привязывается токен.
type Binding struct {
	IP        string
	UserAgent string
}

// Claims содержимое токена. Subject хранит id учетной записи, ID уникальный jti.
type Claims struct {
	Role      string `json:"role"`
	Class     Class  `json:"class"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"ua,omitempty"`
	jwt.RegisteredClaims
}

// AccountID разбирает subject токена.
func (c *Claims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalid, c.Subject)
	}
	return id, nil
}
