package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
)

// JWTSecretKey for signing realtime channel tokens
var JWTSecretKey string

func init() {
	JWTSecretKey, _ = env.GetEnvString("JWT_SECRET_KEY")
}

// RealtimeTokenClaims represents the claims in a realtime channel JWT
type RealtimeTokenClaims struct {
	Session string `json:"session"`
	jwt.RegisteredClaims
}

// GenerateRealtimeToken creates a short-lived JWT used to authenticate the
// websocket upgrade for the realtime channel.
func GenerateRealtimeToken(session string, ttl time.Duration) (string, error) {
	if JWTSecretKey == "" {
		return "", errors.New("JWT_SECRET_KEY not configured")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	claims := RealtimeTokenClaims{
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(JWTSecretKey))
}

// ValidateRealtimeToken validates a realtime channel JWT and returns the claims
func ValidateRealtimeToken(tokenString string) (*RealtimeTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &RealtimeTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*RealtimeTokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
