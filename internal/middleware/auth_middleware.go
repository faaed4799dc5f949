package middleware

import (
	"context"
	"net/http"
	"strings"

	"cidermill-sync-server/pkg/jwt"
	"cidermill-sync-server/pkg/response"
)

type contextKey string

const (
	OperatorIDKey contextKey = "operatorID"
	DeviceIDKey   contextKey = "deviceID"
)

// AuthMiddleware consumes bearer tokens issued by the external identity
// provider. It only extracts the operator and device identity; there is no
// session handling here.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorIDKey, claims.OperatorID)
			ctx = context.WithValue(ctx, DeviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOperatorID(r *http.Request) string {
	operatorID, ok := r.Context().Value(OperatorIDKey).(string)
	if !ok {
		return ""
	}
	return operatorID
}

func GetDeviceID(r *http.Request) string {
	deviceID, ok := r.Context().Value(DeviceIDKey).(string)
	if !ok {
		return ""
	}
	return deviceID
}
