package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vitalog/healthchat/pkg/utils"
)

// RequireBearer rejects requests whose bearer token does not match token.
// An empty token disables the check.
func RequireBearer(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				utils.RespondFail(w, http.StatusUnauthorized, "未登录或登录已过期")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
