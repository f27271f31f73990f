package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/shadowsync/core/logger"
)

// NewBearerMiddleware returns a middleware handler to validate JWT bearer
// tokens signed with the shared secret (HS256).
//
// This is a final handler with regards to the bearer token: it returns
// http.StatusUnauthorized when the token is missing or insufficient to
// authorize the request.
func NewBearerMiddleware(secret string) mux.MiddlewareFunc {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rlog := logger.FromContext(r.Context())

			auth := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(auth, "Bearer ")
			if !found {
				http.Error(w, "bearer token required", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(tokenString, keyFunc)
			if err != nil || !token.Valid {
				rlog.Warnln("rejected bearer token:", err)
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
