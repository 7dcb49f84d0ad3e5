// Package issuer mints the identity and access tokens the auth server hands
// out at login and refresh time.
package issuer

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mymanybooks/go-auth/users"
	"github.com/pkg/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Issuer signs HS256 tokens with a shared secret.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
}

func New(secret []byte, issuerName, audience string) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("[issuer.New] signing secret is required")
	}
	return &Issuer{secret: secret, issuer: issuerName, audience: audience}, nil
}

// IdentityToken creates a signed identity token carrying the user's display
// claims (sub, email, given_name, family_name).
func (i *Issuer) IdentityToken(user *users.User, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":         i.issuer,
		"aud":         i.audience,
		"sub":         user.ID,
		"email":       user.Email,
		"given_name":  user.Name,
		"family_name": user.Surname,
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
		"jti":         uuid.New().String(),
	}
	return i.sign(claims)
}

// AccessToken creates a signed access token presented to protected endpoints.
func (i *Issuer) AccessToken(user *users.User, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":  i.issuer,
		"aud":  i.audience,
		"sub":  user.ID,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"jti":  uuid.New().String(),
	}
	return i.sign(claims)
}

// Verify parses and validates an access or identity token, returning its
// claims. Used by the server's protected endpoints.
func (i *Issuer) Verify(rawToken string) (jwtlib.MapClaims, error) {
	parsed, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return i.secret, nil
	}, jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }))
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(err, "[Issuer.Verify] token invalid")
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[Issuer.Verify] error extracting claims")
	}
	return claims, nil
}

func (i *Issuer) sign(claims jwtlib.MapClaims) (string, error) {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.sign] SignedString")
	}
	return signed, nil
}
