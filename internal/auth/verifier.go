package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
)

// Roles carried in platform-issued credentials.
const (
	RoleShopper  = "shopper"
	RoleMerchant = "merchant"
)

// Identity is the verified caller: user id plus platform role.
type Identity struct {
	UserID string
	Role   string
}

// Verifier validates a bearer credential issued by the platform's identity
// service and extracts the caller identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier verifies HS256 tokens signed with a shared platform secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, apperr.Auth("missing_credential", "bearer credential is required")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.Auth("expired_credential", "credential has expired").Wrap(err)
		}
		return Identity{}, apperr.Auth("invalid_credential", "credential could not be verified").Wrap(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, apperr.Auth("invalid_credential", "unexpected claims format")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, apperr.Auth("invalid_credential", "credential has no subject")
	}
	role, _ := claims["role"].(string)

	return Identity{UserID: sub, Role: role}, nil
}

// Issue signs a credential for id valid for ttl. Used by the dev tooling and
// tests; production tokens come from the platform's identity service.
func (v *JWTVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id.UserID,
		"role": id.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}
