package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/auth"
	"github.com/memolanes/memolanes-server/internal/store"
)

type contextKey int

const userContextKey contextKey = 0

// withAuth requires a valid "Bearer <token>" Authorization header,
// resolving it to a store.User via authSvc and attaching it to the
// request context for handlers to read with userFromContext.
func withAuth(authSvc *auth.Service, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, logger, apierr.New(apierr.Unauthorized, "missing bearer token"))
			return
		}

		user, err := authSvc.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

func userFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)
	return user
}

// withCORS echoes back the request's Origin header when it's in the
// allowed list, and short-circuits preflight OPTIONS requests.
func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(allowedOrigins, origin) || slices.Contains(allowedOrigins, "*")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging logs one line per request at Info level, mirroring the
// teacher's "one log statement per significant step" convention.
func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("handling request", slog.String("method", r.Method), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}
