// Package token decodes identity-token claims on the client side.
//
// The decode is deliberately unverified: signature verification is the
// server's job, and the extracted claims only populate the local user cache
// for display. Nothing here may ever be used as an authorization check.
package token

import (
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is not a well-formed three
// segment JWT or its payload is not valid base64url-encoded JSON.
var ErrInvalidToken = errors.New("invalid token")

// IdentityClaims are the claims the session layer cares about.
type IdentityClaims struct {
	Subject    string // "sub" - the user's unique ID
	Email      string // "email"
	GivenName  string // "given_name", optional
	FamilyName string // "family_name", optional
}

// DecodeIdentity extracts the payload claims from an identity token without
// verifying its signature.
func DecodeIdentity(rawToken string) (*IdentityClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: error extracting claims", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	givenName, _ := claims["given_name"].(string)
	familyName, _ := claims["family_name"].(string)

	return &IdentityClaims{
		Subject:    sub,
		Email:      email,
		GivenName:  givenName,
		FamilyName: familyName,
	}, nil
}
