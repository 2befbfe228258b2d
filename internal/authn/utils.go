package authn

import (
	"errors"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidJWT = errors.New("invalid jwt token")
var ErrInvalidClaims = errors.New("invalid claims")

type Claims struct {
	jwt.StandardClaims
	Username    string `json:"preferred_username"`
	Email       string `json:"email"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// IsDirectoryAdmin reports whether the token grants the role that may
// trigger reconciliation runs.
func (c Claims) IsDirectoryAdmin() bool {
	for _, role := range c.RealmAccess.Roles {
		if role == "directory-admin" {
			return true
		}
	}
	return false
}

func ParseClaims(token string) (Claims, error) {
	claims := Claims{}
	// Check if token is JWT by attempting to parse it
	if t, err := jwt.ParseWithClaims(token, &claims, nil); err != nil {
		// Ignore validation errors; the gateway has already verified the
		// signature before the request reaches this service
		if _, ok := err.(*jwt.ValidationError); !ok {
			return claims, ErrInvalidJWT
		}

		// Check if token was decoded successfully
		if t == nil {
			return claims, ErrInvalidClaims
		}
	}
	return claims, nil
}
