package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential rejection reasons. All of them mean "authentication
// failed, do not retry with the same token".
var (
	ErrTokenMissing   = errors.New("auth: no bearer token")
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrBadSignature   = errors.New("auth: invalid token signature")
)

// Identity is what a verified credential asserts about the caller.
// TokenVersion still has to be checked against the store; that lookup
// belongs to the entitlement step, not here.
type Identity struct {
	Email        string
	Role         string // "ROLE_NORMAL" .. "ROLE_ADMIN"
	NickName     string
	TokenVersion int
}

type tokenClaims struct {
	Roles        []string `json:"roles"`
	NickName     string   `json:"nickName"`
	TokenVersion int      `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 credentials. Admin tokens get
// a shorter lifetime.
type TokenIssuer struct {
	secret      []byte
	expiry      time.Duration
	adminExpiry time.Duration
}

// NewTokenIssuer rejects secrets under 32 bytes (HS256 wants 256 bits).
func NewTokenIssuer(secret string, expiry, adminExpiry time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	if adminExpiry <= 0 {
		adminExpiry = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, adminExpiry: adminExpiry}, nil
}

// Sign mints a credential for a user. roleName is the bare tier name
// ("NORMAL", "MEMBER", ...); the roles claim carries it ROLE_-prefixed.
func (t *TokenIssuer) Sign(email, roleName, nickName string, tokenVersion int) (string, error) {
	exp := t.expiry
	if roleName == "ADMIN" {
		exp = t.adminExpiry
	}
	now := time.Now()
	claims := tokenClaims{
		Roles:        []string{"ROLE_" + roleName},
		NickName:     nickName,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(exp)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a credential and extracts the caller identity.
func (t *TokenIssuer) Parse(token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrTokenMissing
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return Identity{}, ErrBadSignature
		default:
			return Identity{}, ErrTokenMalformed
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrTokenMalformed
	}

	role := "ROLE_NORMAL"
	if len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	return Identity{
		Email:        claims.Subject,
		Role:         role,
		NickName:     claims.NickName,
		TokenVersion: claims.TokenVersion,
	}, nil
}

// BearerToken pulls the raw token out of an Authorization header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrTokenMissing
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrTokenMalformed
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}
