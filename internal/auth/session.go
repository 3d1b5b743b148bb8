// Package auth verifies the signed session cookie presented during the
// WebSocket handshake. Verification is purely local: the shared secret is
// enough, no call to the main application is made.
package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// Rejection reasons, surfaced in the close frame and in logs.
var (
	ErrNoCookies      = errors.New("no cookies")
	ErrNoSessionToken = errors.New("no session token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Identity describes an authenticated subject. SubjectID and DisplayName
// are non-empty whenever Verify succeeds.
type Identity struct {
	SubjectID   string
	DisplayName string
	Role        string
}

type Verifier struct {
	secret     []byte
	cookieName string
}

func NewVerifier(secret, cookieName string) *Verifier {
	return &Verifier{
		secret:     []byte(secret),
		cookieName: cookieName,
	}
}

// Verify authenticates the raw Cookie header of an upgrade request. It has
// no side effects and never retries; a rejected client must reconnect with
// fresh credentials.
func (v *Verifier) Verify(rawCookieHeader string) (*Identity, error) {
	if rawCookieHeader == "" {
		return nil, ErrNoCookies
	}

	header := http.Header{}
	header.Add("Cookie", rawCookieHeader)
	req := http.Request{Header: header}

	cookie, err := req.Cookie(v.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSessionToken
	}

	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidPayload
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if sub == "" || name == "" {
		return nil, ErrInvalidPayload
	}
	role, _ := claims["role"].(string)

	return &Identity{
		SubjectID:   sub,
		DisplayName: name,
		Role:        role,
	}, nil
}
