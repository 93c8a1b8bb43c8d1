package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/nairabhi/habitvault/internal/api/response"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				attrs := []any{
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				}
				// Most panics here come from job handlers; knowing whose
				// request blew up shortens the hunt for the offending job.
				if userID, ok := GetUserID(r); ok {
					attrs = append(attrs, "user_id", userID)
				}
				slog.Error("panic recovered", attrs...)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
