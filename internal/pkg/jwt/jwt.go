package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
)

// Token types carried in the "type" claim
const (
	TokenTypeAccess = "access"
	TokenTypeWS     = "ws"
)

// Service verifies access tokens issued upstream and issues socket tokens
type Service interface {
	GenerateWSToken(userID string) (token string, expiresIn int, err error)
	Verify(ctx context.Context, token string) (presence.VerifiedIdentity, error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	wsTokenTTL time.Duration
	tokenAuth  *jwtauth.JWTAuth
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, wsTokenTTL time.Duration) Service {
	if wsTokenTTL <= 0 {
		wsTokenTTL = 5 * time.Minute
	}
	return &JWTService{
		wsTokenTTL: wsTokenTTL,
		tokenAuth:  jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
	}
}

// GenerateWSToken generates a short-lived token for socket handshakes
func (j *JWTService) GenerateWSToken(userID string) (token string, expiresIn int, err error) {
	expiresIn = int(j.wsTokenTTL.Seconds())
	expiresAt := time.Now().Add(j.wsTokenTTL).Unix()

	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"user_id": userID,
		"type":    TokenTypeWS,
		"exp":     expiresAt,
	})
	if err != nil {
		return "", 0, err
	}

	return tokenString, expiresIn, nil
}

// Verify accepts socket tokens and access tokens
func (j *JWTService) Verify(ctx context.Context, token string) (presence.VerifiedIdentity, error) {
	userID, err := j.userID(token, TokenTypeWS, TokenTypeAccess)
	if err != nil {
		return presence.VerifiedIdentity{}, fmt.Errorf("%w: %v", presence.ErrInvalidCredential, err)
	}
	return presence.VerifiedIdentity{UserID: userID}, nil
}

func (j *JWTService) userID(tokenString string, acceptedTypes ...string) (string, error) {
	token, err := j.tokenAuth.Decode(tokenString)
	if err != nil {
		return "", err
	}

	// Check token type
	tokenType, ok := token.Get("type")
	if !ok || !contains(acceptedTypes, tokenType) {
		return "", jwt.ErrInvalidJWT()
	}

	userIDVal, ok := token.Get("user_id")
	if !ok {
		return "", jwt.ErrInvalidJWT()
	}

	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return "", jwt.ErrInvalidJWT()
	}

	return userID, nil
}

func contains(types []string, v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, t := range types {
		if t == s {
			return true
		}
	}
	return false
}
