package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the operator and the device a token was issued to. Token
// issuance lives in the identity provider; this package only generates
// tokens for tooling/tests and validates incoming ones.
type Claims struct {
	OperatorID string `json:"operator_id"`
	DeviceID   string `json:"device_id"`
	jwt.RegisteredClaims
}

func GenerateToken(operatorID, deviceID string, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		OperatorID: operatorID,
		DeviceID:   deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			Subject:   operatorID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.OperatorID == "" {
		return nil, errors.New("token missing operator id")
	}
	return claims, nil
}
