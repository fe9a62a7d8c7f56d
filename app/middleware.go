package snaptalk

import (
	"context"
	"net/http"
	"strings"

	"github.com/piyawat22/snaptalk/core"
)

type sessionKey struct{}

const AuthCookieName = "auth_token"

func contextWithSession(ctx context.Context, session core.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func sessionFromContext(ctx context.Context) (core.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(core.Session)
	return session, ok
}

// SessionFromRequest extracts the session from the request context. It must
// only be called in handlers protected by JWTMiddleware and panics otherwise.
func SessionFromRequest(r *http.Request) core.Session {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by JWTMiddleware")
	}
	return session
}

// tokenFromRequest looks for the token in the auth cookie, the Authorization
// bearer header, then the token query parameter. The query parameter exists
// for websocket clients that cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Valid() == nil {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// JWTMiddleware validates the request's token and attaches the session to the
// request context for subsequent handlers.
func JWTMiddleware(a core.AuthStore) Middleware {
	return func(next http.Handler) HandlerFunc {
		authErr := NewJsonError(http.StatusUnauthorized, "unauthenticated")

		return func(w http.ResponseWriter, r *http.Request) error {
			token := tokenFromRequest(r)
			if token == "" {
				return authErr
			}

			session, err := a.Session(r.Context(), token)
			if err != nil {
				return authErr
			}

			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), *session)))
			return nil
		}
	}
}
