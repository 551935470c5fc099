package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/proflens/pkg/logger"
)

// RequestLogger stores a logger enriched with correlation_id, user_id and the
// active trace in the request context, for retrieval via logger.FromContext.
// Mount it after RequestLogging, Tracing and Auth so those fields exist.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
