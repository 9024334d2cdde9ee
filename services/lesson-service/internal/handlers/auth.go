package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/lessondesk/lessondesk/libs/auth"
	"github.com/lessondesk/lessondesk/libs/httpx"
	"github.com/lessondesk/lessondesk/libs/lessons"
)

// Principal is the authenticated dashboard user attached to the request.
type Principal struct {
	UserID int64
	Role   lessons.Role
	Name   string
}

type principalCtxKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

// RequireAuth verifies the Bearer token and stores the principal in the
// request context. Health endpoints are mounted outside this middleware.
func RequireAuth(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
				return
			}

			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
				return
			}

			userID, err := strconv.ParseInt(claims.Sub, 10, 64)
			if err != nil || userID <= 0 {
				writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
				return
			}

			role := lessons.Role(claims.Role)
			switch role {
			case lessons.RoleStudent, lessons.RoleTutor, lessons.RoleAdmin:
			default:
				writeError(w, http.StatusForbidden, "forbidden", msgForbidden)
				return
			}

			p := Principal{UserID: userID, Role: role, Name: claims.Name}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalCtxKey{}, p)))
		})
	}
}
